package domain

import (
	"encoding/json"
	"time"
)

// OplogIndex is a worker-local, monotonically increasing sequence number.
// Invariant O1: replaying entries [0, LastIndex] in order reconstructs the
// worker's current WorkerStatus and all outstanding promises exactly.
type OplogIndex uint64

// OplogEntryKind tags the payload carried by an OplogEntry. The set is
// closed: a replay loop that does not recognize a kind must fail rather
// than skip it (Invariant O2 — no silent data loss on unknown entries).
type OplogEntryKind string

const (
	EntryCreate                 OplogEntryKind = "create"
	EntryImportedFunctionInvoke OplogEntryKind = "imported-function-invoked"
	EntryExportedFunctionInvoke OplogEntryKind = "exported-function-invoked"
	EntryExportedFunctionCompl  OplogEntryKind = "exported-function-completed"
	EntrySuspend                OplogEntryKind = "suspend"
	EntryError                  OplogEntryKind = "error"
	EntryNoOp                   OplogEntryKind = "no-op"
	EntryJump                   OplogEntryKind = "jump"
	EntryInterrupted            OplogEntryKind = "interrupted"
	EntryExited                 OplogEntryKind = "exited"
	EntryChangeRetryPolicy      OplogEntryKind = "change-retry-policy"
	EntryBeginAtomicRegion      OplogEntryKind = "begin-atomic-region"
	EntryEndAtomicRegion        OplogEntryKind = "end-atomic-region"
	EntryBeginRemoteWrite       OplogEntryKind = "begin-remote-write"
	EntryEndRemoteWrite         OplogEntryKind = "end-remote-write"
	EntryPendingWorkerInvoke    OplogEntryKind = "pending-worker-invocation"
	EntryPendingUpdate          OplogEntryKind = "pending-update"
	EntrySuccessfulUpdate       OplogEntryKind = "successful-update"
	EntryFailedUpdate           OplogEntryKind = "failed-update"
	EntryGrow                   OplogEntryKind = "grow-memory"
	EntryCreateResource         OplogEntryKind = "create-resource"
	EntryDropResource           OplogEntryKind = "drop-resource"
	EntryDescribeResource       OplogEntryKind = "describe-resource"
	EntryLog                    OplogEntryKind = "log"
	EntryRestart                OplogEntryKind = "restart"
	EntrySnapshot               OplogEntryKind = "snapshot"
)

// OplogEntry is a single durable record in a worker's log. Payload carries
// the kind-specific fields as raw JSON so the store does not need a
// compile-time union type; decode with Decode into the matching struct.
type OplogEntry struct {
	Index     OplogIndex
	Kind      OplogEntryKind
	Timestamp time.Time
	Payload   json.RawMessage
}

// Decode unmarshals the entry's Payload into v. Callers switch on Kind
// first and pass the matching payload struct pointer.
func (e OplogEntry) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// NewOplogEntry builds an OplogEntry for kind, encoding payload (which may
// be nil for kinds that carry no data, such as EntryBeginAtomicRegion).
func NewOplogEntry(index OplogIndex, kind OplogEntryKind, payload interface{}) (*OplogEntry, error) {
	entry := &OplogEntry{Index: index, Kind: kind, Timestamp: time.Now()}
	if payload == nil {
		return entry, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	entry.Payload = data
	return entry, nil
}

// CreatePayload is EntryCreate's payload: the worker's initial metadata.
type CreatePayload struct {
	Worker   WorkerId
	Metadata ComponentMetadata
	Args     []string
	Env      map[string]string
}

// ImportedFunctionInvokedPayload records a side-effecting call a worker
// made into the host (an imported function), with its result, so replay
// can short-circuit it instead of re-executing it (Invariant O1).
type ImportedFunctionInvokedPayload struct {
	FunctionName string
	Request      json.RawMessage
	Response     json.RawMessage
}

// ExportedFunctionInvokedPayload records an inbound invocation starting.
type ExportedFunctionInvokedPayload struct {
	InvocationId   string
	FunctionName   string
	Args           json.RawMessage
	IdempotencyKey string
	Context        InvocationContext
}

// ExportedFunctionCompletedPayload records an inbound invocation finishing.
type ExportedFunctionCompletedPayload struct {
	InvocationId string
	Result       json.RawMessage
	ConsumedFuel uint64
}

// SuspendPayload marks the worker parked awaiting a promise or timer.
type SuspendPayload struct {
	Reason string
}

// ErrorPayload records a worker-fatal error and the retry decision made.
type ErrorPayload struct {
	Message    string
	Retryable  bool
	RetryCount int
}

// JumpPayload supports the fork/revert operation: replay should continue
// from TargetIndex instead of the entry immediately following this one.
type JumpPayload struct {
	TargetIndex OplogIndex
}

// PendingWorkerInvocationPayload records an invocation queued for a worker
// that was not running yet, or a scheduled invocation waiting for its time.
type PendingWorkerInvocationPayload struct {
	InvocationId   string
	FunctionName   string
	Args           json.RawMessage
	IdempotencyKey string
	ScheduledFor   *time.Time
	CancelToken    string
}

// PendingUpdatePayload, SuccessfulUpdatePayload, FailedUpdatePayload drive
// the worker Update Protocol (see pkg/rollout).
type PendingUpdatePayload struct {
	TargetVersion int
	UpdateMode    UpdateMode
}

type SuccessfulUpdatePayload struct {
	TargetVersion int
}

type FailedUpdatePayload struct {
	TargetVersion int
	Reason        string
}

// UpdateMode selects how a worker transitions to a new component version.
type UpdateMode string

const (
	UpdateModeAutomatic UpdateMode = "automatic" // replay history against new code
	UpdateModeSnapshot  UpdateMode = "snapshot"  // load a snapshot taken at the boundary
)

// GrowPayload records a memory grow event, needed to replay allocator state.
type GrowPayload struct {
	DeltaBytes int64
}

// CreateResourcePayload / DropResourcePayload track resource handles a
// worker created (e.g. an open file-like handle) so replay reinstantiates
// the same handle ids.
type CreateResourcePayload struct {
	ResourceId uint64
	TypeName   string
}

type DropResourcePayload struct {
	ResourceId uint64
}

// LogPayload carries a worker's own stdout/stderr line into the oplog so
// replay reproduces identical log output.
type LogPayload struct {
	Stream string
	Line   string
}
