/*
Package storage provides BoltDB-backed persistence for a fabrik cluster
node's Raft-replicated state: cluster membership, worker status, the
promise table, component metadata, and the CA's root material.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│  BoltStore                                                 │
	│   - File: <dataDir>/fabrik.db                               │
	│   - Format: B+tree with MVCC, fsync on commit               │
	│                                                             │
	│   Buckets                                                   │
	│    cluster_nodes     (node ID -> ClusterNode)               │
	│    oplog/<worker>    (nested bucket per worker, index -> entry)│
	│    worker_status     (worker ID -> WorkerStatus)             │
	│    promises          (promise ID -> Promise)                 │
	│    components        (componentID/version -> ComponentMetadata)│
	│    ca                (fixed key -> CA root material)         │
	│                                                             │
	│   db.View()   -> concurrent reads                           │
	│   db.Update() -> serialized writes, auto rollback on error   │
	└─────────────────────────────────────────────────────────────┘

Every bucket stores JSON-marshaled domain structs; BoltStore's job is
key layout and transaction boundaries, not business rules — those live
in the packages built on top of Store (pkg/oplog, pkg/worker,
pkg/cluster's FSM, pkg/registry).

# Oplog buckets

Each worker gets its own bucket, nested inside the "oplog" bucket and
named by the worker id; its entries are keyed by an 8-byte big-endian
domain.OplogIndex so ListOplogEntries and LastOplogIndex can range-scan
and seek-to-last without deserializing every entry. TruncateOplog drops
everything below a snapshot boundary in one transaction (Invariant O1:
append-only until a truncation commits).

# Usage

	store, err := storage.NewBoltStore(dataDir)
	defer store.Close()

	err = store.AppendOplogEntry(workerID, entry)
	entries, err := store.ListOplogEntries(workerID, fromIndex)

	err = store.PutComponent(meta)
	versions, err := store.ListComponentVersions(componentID)

# Integration Points

  - pkg/cluster: the FSM applies committed Raft log entries through
    this Store, making it the node's single source of truth.
  - pkg/oplog: appends/truncates per-worker oplog entries here.
  - pkg/worker: replays a worker's history by reading its oplog bucket.
  - pkg/registry: a separate Store (boltStore or pgxStore) backs the
    revisioned Account/Application/Environment/Deployment schema —
    see pkg/registry/store.go; it does not share this package's bucket
    layout since it isn't Raft-replicated.
  - pkg/security: CA root material is stored (and encrypted) here.

# See Also

  - https://github.com/etcd-io/bbolt
*/
package storage
