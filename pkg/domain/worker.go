package domain

import "time"

// WorkerId identifies a single durable worker. A worker belongs to exactly
// one component and is never reused across components: (ComponentId,
// WorkerName) is globally unique for the lifetime of the worker.
type WorkerId struct {
	ComponentId string
	WorkerName  string
}

func (w WorkerId) String() string {
	return w.ComponentId + "/" + w.WorkerName
}

// AgentType describes a component's WIT-shaped exported interface: a
// constructor parameter list plus a set of callable methods. Gateways and
// the registry use this to validate Rib bindings and to render an OpenAPI
// document for a deployed component without inspecting its bytecode.
type AgentType struct {
	Name        string
	Version     string
	Constructor []AgentParam
	Methods     []AgentMethod
}

// AgentParam is a single named, typed parameter in a constructor or method
// signature. Type follows the WIT primitive/record/list/option vocabulary
// as a string tag ("string", "u64", "list<string>", "option<record>", ...);
// fabrik does not re-implement a WIT type checker, it only needs enough
// shape to validate Rib field-selects against.
type AgentParam struct {
	Name string
	Type string
}

// AgentMethod is one exported function a worker of this agent type answers.
type AgentMethod struct {
	Name    string
	Params  []AgentParam
	Returns []AgentParam
}

// ComponentMetadata describes an uploaded, versioned Wasm component.
type ComponentMetadata struct {
	ComponentId       string
	Version           int
	ContentHash       string
	MemoryLimitBytes  int64
	InitialFilesystem []FileManifestEntry
	Plugins           []string
	AgentType         *AgentType
	CreatedAt         time.Time
}

// FileManifestEntry describes one file fabrik mounts read-only into a
// worker's sandbox at instantiation time.
type FileManifestEntry struct {
	Path        string
	Permissions uint32
	ContentHash string
	SizeBytes   int64
}

// WorkerStatus is the state machine an oplog replay reconstructs for a
// single worker. Transitions are driven exclusively by applying OplogEntry
// values in order; nothing else is allowed to mutate it.
type WorkerStatus string

const (
	WorkerStatusIdle      WorkerStatus = "idle"
	WorkerStatusRunning   WorkerStatus = "running"
	WorkerStatusSuspended WorkerStatus = "suspended"
	WorkerStatusRetrying  WorkerStatus = "retrying"
	WorkerStatusFailed    WorkerStatus = "failed"
	WorkerStatusExited    WorkerStatus = "exited"
)

// ResourceLimits bounds a worker's execution: a fuel budget (an abstract
// unit of computation charged per instruction/host-call, matching the
// Wasm metering idiom) and a memory ceiling.
type ResourceLimits struct {
	FuelLimit       uint64
	MemoryLimitByte int64
}

// TrapKind classifies why a worker's execution stopped abnormally.
type TrapKind string

const (
	TrapNone        TrapKind = ""
	TrapOutOfFuel   TrapKind = "out-of-fuel"
	TrapOutOfMemory TrapKind = "out-of-memory"
	TrapUnreachable TrapKind = "unreachable"
	TrapHostError   TrapKind = "host-error"
)
