package storage

import (
	"github.com/cuemby/fabrik/pkg/domain"
)

// Store defines the durable storage interface the oplog FSM and cluster
// control plane apply committed Raft entries against. A single Raft group
// backs all of it; BoltStore is the default implementation, bucket-per-
// entity-type, values JSON-encoded.
type Store interface {
	// Cluster nodes (control-plane voters and runtime hosts)
	CreateClusterNode(node *domain.ClusterNode) error
	GetClusterNode(id string) (*domain.ClusterNode, error)
	ListClusterNodes() ([]*domain.ClusterNode, error)
	UpdateClusterNode(node *domain.ClusterNode) error
	DeleteClusterNode(id string) error

	// Oplog entries, one bucket-of-buckets keyed by worker id
	AppendOplogEntry(worker domain.WorkerId, entry *domain.OplogEntry) error
	ListOplogEntries(worker domain.WorkerId, fromIndex domain.OplogIndex) ([]*domain.OplogEntry, error)
	LastOplogIndex(worker domain.WorkerId) (domain.OplogIndex, error)
	TruncateOplog(worker domain.WorkerId, beforeIndex domain.OplogIndex) error
	DeleteOplog(worker domain.WorkerId) error

	// Worker status, the compacted view a snapshot captures
	PutWorkerStatus(worker domain.WorkerId, status domain.WorkerStatus) error
	GetWorkerStatus(worker domain.WorkerId) (domain.WorkerStatus, error)
	ListWorkers() ([]domain.WorkerId, error)

	// Promises
	CreatePromise(p *domain.Promise) error
	GetPromise(id string) (*domain.Promise, error)
	CompletePromise(id string, result []byte, errMsg string) error
	DeletePromise(id string) error

	// Component metadata
	PutComponent(meta *domain.ComponentMetadata) error
	GetComponent(componentID string, version int) (*domain.ComponentMetadata, error)
	ListComponentVersions(componentID string) ([]*domain.ComponentMetadata, error)

	// Certificate authority material for the RPC fabric's mTLS transport
	SaveCA(data []byte) error
	GetCA() ([]byte, error)

	Close() error
}
