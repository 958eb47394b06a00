package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketClusterNodes = []byte("cluster_nodes")
	bucketOplog        = []byte("oplog")
	bucketWorkerStatus = []byte("worker_status")
	bucketPromises     = []byte("promises")
	bucketComponents   = []byte("components")
	bucketCA           = []byte("ca")
)

// BoltStore implements Store using BoltDB, the default single-binary
// backend for every fabrik host.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a fabrik data directory.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "fabrik.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketClusterNodes, bucketOplog, bucketWorkerStatus,
			bucketPromises, bucketComponents, bucketCA,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Cluster nodes ---

func (s *BoltStore) CreateClusterNode(node *domain.ClusterNode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusterNodes)
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return b.Put([]byte(node.ID), data)
	})
}

func (s *BoltStore) GetClusterNode(id string) (*domain.ClusterNode, error) {
	var node domain.ClusterNode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusterNodes)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("cluster node not found: %s", id)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListClusterNodes() ([]*domain.ClusterNode, error) {
	var nodes []*domain.ClusterNode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusterNodes)
		return b.ForEach(func(k, v []byte) error {
			var node domain.ClusterNode
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateClusterNode(node *domain.ClusterNode) error {
	return s.CreateClusterNode(node)
}

func (s *BoltStore) DeleteClusterNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusterNodes).Delete([]byte(id))
	})
}

// --- Oplog ---

func indexKey(idx domain.OplogIndex) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(idx))
	return key
}

func (s *BoltStore) workerBucket(tx *bolt.Tx, worker domain.WorkerId, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket(bucketOplog)
	name := []byte(worker.String())
	if create {
		return root.CreateBucketIfNotExists(name)
	}
	b := root.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("no oplog for worker %s", worker)
	}
	return b, nil
}

func (s *BoltStore) AppendOplogEntry(worker domain.WorkerId, entry *domain.OplogEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.workerBucket(tx, worker, true)
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(indexKey(entry.Index), data)
	})
}

func (s *BoltStore) ListOplogEntries(worker domain.WorkerId, fromIndex domain.OplogIndex) ([]*domain.OplogEntry, error) {
	var entries []*domain.OplogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.workerBucket(tx, worker, false)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, v := c.Seek(indexKey(fromIndex)); k != nil; k, v = c.Next() {
			var e domain.OplogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *BoltStore) LastOplogIndex(worker domain.WorkerId) (domain.OplogIndex, error) {
	var last domain.OplogIndex
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.workerBucket(tx, worker, false)
		if err != nil {
			last = 0
			return nil
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return nil
		}
		var e domain.OplogEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		last = e.Index
		return nil
	})
	return last, err
}

func (s *BoltStore) TruncateOplog(worker domain.WorkerId, beforeIndex domain.OplogIndex) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.workerBucket(tx, worker, false)
		if err != nil {
			return nil
		}
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			idx := domain.OplogIndex(binary.BigEndian.Uint64(k))
			if idx < beforeIndex {
				keyCopy := append([]byte{}, k...)
				toDelete = append(toDelete, keyCopy)
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) DeleteOplog(worker domain.WorkerId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOplog).DeleteBucket([]byte(worker.String()))
	})
}

// --- Worker status ---

func (s *BoltStore) PutWorkerStatus(worker domain.WorkerId, status domain.WorkerStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkerStatus)
		return b.Put([]byte(worker.String()), []byte(status))
	})
}

func (s *BoltStore) GetWorkerStatus(worker domain.WorkerId) (domain.WorkerStatus, error) {
	var status domain.WorkerStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkerStatus)
		data := b.Get([]byte(worker.String()))
		if data == nil {
			return fmt.Errorf("worker not found: %s", worker)
		}
		status = domain.WorkerStatus(data)
		return nil
	})
	return status, err
}

func (s *BoltStore) ListWorkers() ([]domain.WorkerId, error) {
	var workers []domain.WorkerId
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkerStatus)
		return b.ForEach(func(k, v []byte) error {
			workers = append(workers, parseWorkerId(string(k)))
			return nil
		})
	})
	return workers, err
}

func parseWorkerId(s string) domain.WorkerId {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return domain.WorkerId{ComponentId: s[:i], WorkerName: s[i+1:]}
		}
	}
	return domain.WorkerId{WorkerName: s}
}

// --- Promises ---

func (s *BoltStore) CreatePromise(p *domain.Promise) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPromises)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.ID), data)
	})
}

func (s *BoltStore) GetPromise(id string) (*domain.Promise, error) {
	var p domain.Promise
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPromises)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("promise not found: %s", id)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) CompletePromise(id string, result []byte, errMsg string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPromises)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("promise not found: %s", id)
		}
		var p domain.Promise
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Completed() {
			return nil // idempotent: a replayed completion is a no-op
		}
		now := time.Now()
		p.CompletedAt = &now
		p.Result = result
		p.Err = errMsg
		out, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
}

func (s *BoltStore) DeletePromise(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPromises).Delete([]byte(id))
	})
}

// --- Components ---

func componentKey(componentID string, version int) []byte {
	return []byte(fmt.Sprintf("%s/%010d", componentID, version))
}

func (s *BoltStore) PutComponent(meta *domain.ComponentMetadata) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketComponents)
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put(componentKey(meta.ComponentId, meta.Version), data)
	})
}

func (s *BoltStore) GetComponent(componentID string, version int) (*domain.ComponentMetadata, error) {
	var meta domain.ComponentMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketComponents)
		data := b.Get(componentKey(componentID, version))
		if data == nil {
			return fmt.Errorf("component not found: %s@%d", componentID, version)
		}
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *BoltStore) ListComponentVersions(componentID string) ([]*domain.ComponentMetadata, error) {
	var versions []*domain.ComponentMetadata
	prefix := []byte(componentID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketComponents)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var meta domain.ComponentMetadata
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			versions = append(versions, &meta)
		}
		return nil
	})
	return versions, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// --- CA ---

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("ca"), data)
	})
}

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCA).Get([]byte("ca"))
		if raw == nil {
			return fmt.Errorf("CA not found")
		}
		data = append([]byte{}, raw...)
		return nil
	})
	return data, err
}
