/*
Package worker implements the fabrik worker actor: one goroutine-driven
agent per durable or ephemeral worker that owns its execution state,
arbitrates replay vs live execution against its oplog, and enforces the
fuel/memory budget negotiated with its account's Limiter.

The package generalizes warren's worker.Worker (a gRPC client polling a
manager for container assignments and driving containerd) into an actor
that pops invocations off a FIFO queue and drives a runtime.Engine
instance through replay-seeded execution instead: ticker loops become a
single dispatch loop, "container state" becomes domain.WorkerStatus, and
"heartbeat to manager" becomes the Health type the reconciler polls.

# Architecture

	┌───────────────────────── Actor ─────────────────────────┐
	│                                                           │
	│   invocation queue (FIFO)      oplog.Service              │
	│         │                           │                     │
	│         ▼                           ▼                     │
	│   ┌───────────┐   replay   ┌────────────────┐             │
	│   │ dispatch   │──────────▶│ runtime.Engine  │             │
	│   │ loop       │◀──────────│ Instance        │             │
	│   └───────────┘   live     └────────────────┘             │
	│         │                                                  │
	│         ▼                                                  │
	│   Limiter (fuel/memory, per-account)                       │
	└───────────────────────────────────────────────────────────┘

# Replay-seeded execution

On activation the actor reads its whole oplog (minus any region a Jump
entry elides), restores its resource handle table from
CreateResource/DropResource entries, and fills its idempotency cache from
ExportedFunctionInvoked/ExportedFunctionCompleted pairs. Replay does not
run the component and does not feed recorded ImportedFunctionInvoked
results back to it. When the pass is done the actor switches to
PhaseLive and starts its dispatch loop.

# See also

  - pkg/oplog for the append/replay log this actor drives
  - pkg/runtime for the Engine/Instance contract it executes against
  - pkg/rollout for the update protocol applied across many actors
  - pkg/rpc for the fabric that locates and enqueues invocations on an actor
*/
package worker
