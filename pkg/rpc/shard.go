package rpc

import (
	"hash/fnv"
	"sync"

	"github.com/cuemby/fabrik/pkg/domain"
)

// ShardCount is fixed at fabric construction time; growing it would
// remap most workers, so it is chosen once for the cluster's lifetime
// (spec.md §4.3).
const DefaultShardCount = 256

// ShardID returns the stable shard a worker_id hashes to. Stable means
// the same worker always lands on the same shard regardless of process
// restarts — callers rely on this to cache assignments.
func ShardID(worker domain.WorkerId, shardCount uint32) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(worker.String()))
	return h.Sum32() % shardCount
}

// ShardTable maps shard_id to the host currently owning it. A single
// process's ShardTable is authoritative only for its own view; it
// changes only through Assign (called by pkg/scheduler in the same
// process). Assignments are not stored in the raft log and are not
// copied into other hosts' tables.
type ShardTable struct {
	mu         sync.RWMutex
	shardCount uint32
	owner      map[uint32]string // shard_id -> host address
	self       string
}

// NewShardTable builds a table for a cluster of shardCount shards,
// identifying this process as self (used for the direct-path check).
func NewShardTable(shardCount uint32, self string) *ShardTable {
	return &ShardTable{
		shardCount: shardCount,
		owner:      make(map[uint32]string),
		self:       self,
	}
}

// Assign records (or updates) the owning host for shardID.
func (t *ShardTable) Assign(shardID uint32, host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owner[shardID] = host
}

// Owner returns the host owning shardID, or ("", false) if this
// process's table has no assignment yet (the caller should treat that
// as InvalidShardId and retry after the next convergence event).
func (t *ShardTable) Owner(shardID uint32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	host, ok := t.owner[shardID]
	return host, ok
}

// IsLocal reports whether worker's shard is owned by this process,
// enabling the direct-path bypass (skip the network hop entirely and
// enqueue straight into the local worker.Manager).
func (t *ShardTable) IsLocal(worker domain.WorkerId) (uint32, bool) {
	shardID := ShardID(worker, t.shardCount)
	host, ok := t.Owner(shardID)
	return shardID, ok && host == t.self
}

// Shards returns every shard_id currently owned by this process;
// HealthServer's /ready uses it to tell whether this host owns any
// shard yet.
func (t *ShardTable) Shards() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	owned := make([]uint32, 0, len(t.owner))
	for shard, host := range t.owner {
		if host == t.self {
			owned = append(owned, shard)
		}
	}
	return owned
}

// ShardCount returns the table's fixed shard count.
func (t *ShardTable) ShardCount() uint32 { return t.shardCount }
