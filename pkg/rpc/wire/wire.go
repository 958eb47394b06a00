// Package wire defines the RPC fabric's request/response messages. This
// corpus's retrieval slice does not include warren's protoc-generated
// api/proto package (no .proto/.pb.go sources were retrieved, and this
// build forbids running the Go toolchain, hence no protoc invocation),
// so the wire messages are hand-written Go structs carried over
// google.golang.org/grpc using a small JSON codec (see codec.go)
// registered under content-subtype "json" instead of protobuf — every
// teacher-chosen transport/TLS/interceptor behavior stays intact.
package wire

import (
	"encoding/json"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
)

// InvokeRequest is the fabric's core RPC: dispatch fn against worker,
// in the mode the caller asked for (spec.md §4.3 four invocation modes).
type InvokeRequest struct {
	Worker         domain.WorkerId
	Function       string
	Args           json.RawMessage
	IdempotencyKey string
	Context        domain.InvocationContext
	Mode           domain.InvocationMode
	ScheduledFor   *time.Time // set when Mode == InvokeScheduled
}

// InvokeResponse carries either a result or a structured error; fields
// mirror domain.WorkerExecutorError so a peer can reconstruct it with
// errors.As on the receiving side instead of matching strings.
type InvokeResponse struct {
	Output       json.RawMessage
	Trap         domain.TrapKind
	ErrorCode    string
	ErrorMessage string
	// CancelToken is set when Mode is InvokeScheduled or
	// InvokeCancelable, identifying the entry a later CancelRequest
	// removes before it fires.
	CancelToken string
}

// ForwardRequest is used for the cross-shard direct forward: the
// receiving host either owns the shard (and enqueues locally) or
// replies InvalidShardId so the caller re-resolves.
type ForwardRequest struct {
	InvokeRequest
	ShardID uint32
}

// ShardMissResponse describes a shard miss: the shard asked for and the
// shards the receiving host owns. No Fabric method returns it; Forward
// reports a shard it does not own as an InvalidShardId error.
type ShardMissResponse struct {
	ShardID     uint32
	OwnedShards []uint32
}

// CancelRequest asks the owning host to remove a scheduled invocation's
// cron entry before it fires (spec.md §4.3 Cancel).
type CancelRequest struct {
	CancelToken string
}

// CancelResponse reports whether the scheduled invocation was removed
// before firing (false if it had already fired or did not exist).
type CancelResponse struct {
	Canceled bool
}

// ShardAssignmentRequest/Response let a peer ask a host which host its
// shard table names as the owner of a shard. Fabric.Invoke does not send
// it; it resolves owners from its own ShardTable.
type ShardAssignmentRequest struct {
	ShardID uint32
}

type ShardAssignmentResponse struct {
	Host string
}
