package cluster

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/storage"
	"github.com/hashicorp/raft"
)

// FSM implements the Raft state machine every fabrik control-plane node
// runs. Its Apply/Snapshot/Restore cycle is the oplog's durability
// mechanism: every OplogEntry a worker produces, every cluster node
// join/leave, and every worker status transition passes through here
// before it is visible to any reader.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM creates a new FSM instance.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Command is a single state change submitted to the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	OpAppendOplogEntry  = "append_oplog_entry"
	OpTruncateOplog     = "truncate_oplog"
	OpDeleteOplog       = "delete_oplog"
	OpPutWorkerStatus   = "put_worker_status"
	OpCreatePromise     = "create_promise"
	OpCompletePromise   = "complete_promise"
	OpDeletePromise     = "delete_promise"
	OpPutComponent      = "put_component"
	OpCreateClusterNode = "create_cluster_node"
	OpUpdateClusterNode = "update_cluster_node"
	OpDeleteClusterNode = "delete_cluster_node"
)

type appendOplogEntryData struct {
	Worker domain.WorkerId
	Entry  domain.OplogEntry
}

type truncateOplogData struct {
	Worker      domain.WorkerId
	BeforeIndex domain.OplogIndex
}

type putWorkerStatusData struct {
	Worker domain.WorkerId
	Status domain.WorkerStatus
}

type completePromiseData struct {
	ID     string
	Result []byte
	Err    string
}

// Apply applies one committed Raft log entry to the FSM.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpAppendOplogEntry:
		var d appendOplogEntryData
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return err
		}
		return f.store.AppendOplogEntry(d.Worker, &d.Entry)

	case OpTruncateOplog:
		var d truncateOplogData
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return err
		}
		return f.store.TruncateOplog(d.Worker, d.BeforeIndex)

	case OpDeleteOplog:
		var worker domain.WorkerId
		if err := json.Unmarshal(cmd.Data, &worker); err != nil {
			return err
		}
		return f.store.DeleteOplog(worker)

	case OpPutWorkerStatus:
		var d putWorkerStatusData
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return err
		}
		return f.store.PutWorkerStatus(d.Worker, d.Status)

	case OpCreatePromise:
		var p domain.Promise
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.CreatePromise(&p)

	case OpCompletePromise:
		var d completePromiseData
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return err
		}
		return f.store.CompletePromise(d.ID, d.Result, d.Err)

	case OpDeletePromise:
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeletePromise(id)

	case OpPutComponent:
		var meta domain.ComponentMetadata
		if err := json.Unmarshal(cmd.Data, &meta); err != nil {
			return err
		}
		return f.store.PutComponent(&meta)

	case OpCreateClusterNode:
		var node domain.ClusterNode
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.CreateClusterNode(&node)

	case OpUpdateClusterNode:
		var node domain.ClusterNode
		if err := json.Unmarshal(cmd.Data, &node); err != nil {
			return err
		}
		return f.store.UpdateClusterNode(&node)

	case OpDeleteClusterNode:
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeleteClusterNode(id)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot captures the FSM's compacted state for log truncation.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	nodes, err := f.store.ListClusterNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster nodes: %w", err)
	}

	workers, err := f.store.ListWorkers()
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}

	snap := &Snapshot{ClusterNodes: nodes}
	for _, w := range workers {
		status, err := f.store.GetWorkerStatus(w)
		if err != nil {
			continue
		}
		entries, err := f.store.ListOplogEntries(w, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list oplog for %s: %w", w, err)
		}
		snap.Workers = append(snap.Workers, WorkerSnapshot{
			Worker:  w,
			Status:  status,
			Entries: entries,
		})
	}

	return snap, nil
}

// Restore restores the FSM from a snapshot, replayed on node restart or
// when a new node joins the cluster (Invariant O1: the replayed state is
// byte-identical to the leader's).
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, node := range snap.ClusterNodes {
		if err := f.store.CreateClusterNode(node); err != nil {
			return fmt.Errorf("failed to restore cluster node: %w", err)
		}
	}

	for _, w := range snap.Workers {
		if err := f.store.PutWorkerStatus(w.Worker, w.Status); err != nil {
			return fmt.Errorf("failed to restore worker status: %w", err)
		}
		for _, e := range w.Entries {
			if err := f.store.AppendOplogEntry(w.Worker, e); err != nil {
				return fmt.Errorf("failed to restore oplog entry: %w", err)
			}
		}
	}

	return nil
}

// WorkerSnapshot is one worker's compacted oplog as captured in a Snapshot.
type WorkerSnapshot struct {
	Worker  domain.WorkerId
	Status  domain.WorkerStatus
	Entries []*domain.OplogEntry
}

// Snapshot is a point-in-time capture of the whole FSM.
type Snapshot struct {
	ClusterNodes []*domain.ClusterNode
	Workers      []WorkerSnapshot
}

// Persist writes the snapshot to the given SnapshotSink.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release releases the snapshot's resources.
func (s *Snapshot) Release() {}
