/*
Package runtime defines the Engine/Module/Instance contract a worker
actor instantiates Wasm components against.

fabrik does not embed a Wasm host itself; Engine is implemented by an
external collaborator (a wasmtime or wasmer binding) the way warren's
ContainerdRuntime wrapped containerd. This package ships only the
interface plus MockEngine, an in-memory stand-in used by the package
tests and by `fabrik serve`, which always runs on MockEngine (it has no
flag to select another engine).

# Resource accounting

Instantiate takes a domain.ResourceLimits (fuel budget, memory ceiling).
A conforming Engine charges fuel per instruction/host-call and traps
with domain.TrapOutOfFuel or domain.TrapOutOfMemory when a limit is
exceeded; MockEngine approximates this with a fixed per-invoke charge.

# Snapshot and Load

Instance.Snapshot/Load back the Update Protocol's snapshot UpdateMode
(pkg/worker's Actor.Update, driven by pkg/rollout). pkg/worker's Fork and
Revert do not use them: Fork copies oplog entries to a new worker id and
Revert appends a Jump entry.
*/
package runtime
