package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/runtime"
	"github.com/cuemby/fabrik/pkg/rpc/wire"
	"github.com/cuemby/fabrik/pkg/worker"
	"github.com/stretchr/testify/require"
)

// fakeOplog is the same in-memory oplog.Appender seam pkg/worker's own
// tests use (spec.md §9), reimplemented here since it is unexported in
// that package.
type fakeOplog struct {
	mu      sync.Mutex
	entries map[string][]*domain.OplogEntry
}

func newFakeOplog() *fakeOplog {
	return &fakeOplog{entries: make(map[string][]*domain.OplogEntry)}
}

func (f *fakeOplog) Append(w domain.WorkerId, kind domain.OplogEntryKind, payload interface{}) (*domain.OplogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := domain.OplogIndex(len(f.entries[w.String()]) + 1)
	entry, err := domain.NewOplogEntry(idx, kind, payload)
	if err != nil {
		return nil, err
	}
	f.entries[w.String()] = append(f.entries[w.String()], entry)
	return entry, nil
}

func (f *fakeOplog) Read(w domain.WorkerId, fromIndex domain.OplogIndex) ([]*domain.OplogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.OplogEntry
	for _, e := range f.entries[w.String()] {
		if e.Index >= fromIndex {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeOplog) LastIndex(w domain.WorkerId) (domain.OplogIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.entries[w.String()]
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].Index, nil
}

// fakeStore implements storage.Store in memory, just enough surface for
// the Fabric to resolve component metadata; the rest is unused by these
// tests but must exist to satisfy the interface.
type fakeStore struct {
	mu         sync.Mutex
	components map[string]*domain.ComponentMetadata
}

func newFakeStore() *fakeStore {
	return &fakeStore{components: make(map[string]*domain.ComponentMetadata)}
}

func (s *fakeStore) CreateClusterNode(*domain.ClusterNode) error    { return nil }
func (s *fakeStore) GetClusterNode(string) (*domain.ClusterNode, error) {
	return nil, domain.ErrInvalidRequest("not found")
}
func (s *fakeStore) ListClusterNodes() ([]*domain.ClusterNode, error) { return nil, nil }
func (s *fakeStore) UpdateClusterNode(*domain.ClusterNode) error      { return nil }
func (s *fakeStore) DeleteClusterNode(string) error                   { return nil }

func (s *fakeStore) AppendOplogEntry(domain.WorkerId, *domain.OplogEntry) error { return nil }
func (s *fakeStore) ListOplogEntries(domain.WorkerId, domain.OplogIndex) ([]*domain.OplogEntry, error) {
	return nil, nil
}
func (s *fakeStore) LastOplogIndex(domain.WorkerId) (domain.OplogIndex, error) { return 0, nil }
func (s *fakeStore) TruncateOplog(domain.WorkerId, domain.OplogIndex) error    { return nil }
func (s *fakeStore) DeleteOplog(domain.WorkerId) error                        { return nil }

func (s *fakeStore) PutWorkerStatus(domain.WorkerId, domain.WorkerStatus) error { return nil }
func (s *fakeStore) GetWorkerStatus(domain.WorkerId) (domain.WorkerStatus, error) {
	return domain.WorkerStatus{}, nil
}
func (s *fakeStore) ListWorkers() ([]domain.WorkerId, error) { return nil, nil }

func (s *fakeStore) CreatePromise(*domain.Promise) error { return nil }
func (s *fakeStore) GetPromise(string) (*domain.Promise, error) {
	return nil, domain.ErrInvalidRequest("not found")
}
func (s *fakeStore) CompletePromise(string, []byte, string) error { return nil }
func (s *fakeStore) DeletePromise(string) error                   { return nil }

func (s *fakeStore) PutComponent(meta *domain.ComponentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[meta.ComponentId] = meta
	return nil
}
func (s *fakeStore) GetComponent(componentID string, version int) (*domain.ComponentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.components[componentID]
	if !ok {
		return nil, domain.ErrInvalidRequest("unknown component: " + componentID)
	}
	return meta, nil
}
func (s *fakeStore) ListComponentVersions(componentID string) ([]*domain.ComponentMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta, ok := s.components[componentID]; ok {
		return []*domain.ComponentMetadata{meta}, nil
	}
	return nil, nil
}

func (s *fakeStore) SaveCA([]byte) error        { return nil }
func (s *fakeStore) GetCA() ([]byte, error)      { return nil, nil }
func (s *fakeStore) Close() error                { return nil }

func newTestFabric(t *testing.T) (*Fabric, *runtime.MockEngine) {
	t.Helper()
	engine := runtime.NewMockEngine()
	engine.Register("comp-a", 1, func(fn string, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})

	store := newFakeStore()
	require.NoError(t, store.PutComponent(&domain.ComponentMetadata{ComponentId: "comp-a", Version: 1}))

	log := newFakeOplog()
	mgr := worker.NewManager(engine, log, store, worker.NewLimiter(0), nil)
	shards := NewShardTable(DefaultShardCount, "self")

	fabric := NewFabric(shards, mgr, store, log, func(host string) (*wire.FabricClient, error) {
		t.Fatalf("unexpected dial to %s in a single-host test", host)
		return nil, nil
	})

	w := domain.WorkerId{ComponentId: "comp-a", WorkerName: "w1"}
	shardID := ShardID(w, shards.ShardCount())
	shards.Assign(shardID, "self")

	return fabric, engine
}

func TestFabricInvokeDirectPathAwait(t *testing.T) {
	fabric, _ := newTestFabric(t)
	w := domain.WorkerId{ComponentId: "comp-a", WorkerName: "w1"}

	resp, err := fabric.Invoke(context.Background(), &wire.InvokeRequest{
		Worker:   w,
		Function: "do-thing",
		Args:     json.RawMessage(`{}`),
		Mode:     domain.InvokeAwait,
	})
	require.NoError(t, err)
	require.Empty(t, resp.ErrorCode)
	require.JSONEq(t, `{"ok":true}`, string(resp.Output))
}

func TestFabricInvokeUnassignedShardIsInvalid(t *testing.T) {
	fabric, _ := newTestFabric(t)
	assigned := domain.WorkerId{ComponentId: "comp-a", WorkerName: "w1"}
	assignedShard := ShardID(assigned, fabric.Shards.ShardCount())

	var other domain.WorkerId
	for i := 0; ; i++ {
		candidate := domain.WorkerId{ComponentId: "comp-a", WorkerName: "unassigned-candidate"}
		candidate.WorkerName += string(rune('a' + i%26))
		if ShardID(candidate, fabric.Shards.ShardCount()) != assignedShard {
			other = candidate
			break
		}
	}

	_, err := fabric.Invoke(context.Background(), &wire.InvokeRequest{
		Worker:   other,
		Function: "do-thing",
		Args:     json.RawMessage(`{}`),
		Mode:     domain.InvokeAwait,
	})
	require.Error(t, err)
	var werr *domain.WorkerExecutorError
	require.ErrorAs(t, err, &werr)
	require.Equal(t, domain.CodeInvalidShardId, werr.Code)
}

func TestScheduleAddThenCancel(t *testing.T) {
	fabric, _ := newTestFabric(t)
	w := domain.WorkerId{ComponentId: "comp-a", WorkerName: "w1"}
	future := time.Now().Add(24 * time.Hour)

	token, err := fabric.schedule.add(&wire.InvokeRequest{
		Worker:       w,
		Function:     "do-thing",
		Args:         json.RawMessage(`{}`),
		Mode:         domain.InvokeScheduled,
		ScheduledFor: &future,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.True(t, fabric.schedule.cancel(token))
	require.False(t, fabric.schedule.cancel(token), "cancelling twice must report false")
}
