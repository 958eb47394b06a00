package rollout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/runtime"
	"github.com/cuemby/fabrik/pkg/worker"
	"github.com/stretchr/testify/require"
)

// fakeOplog is an in-memory oplog.Appender for tests, the same seam
// pkg/worker's own tests use in place of a real Raft cluster.
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

func testWorker(name string) domain.WorkerId {
	return domain.WorkerId{ComponentId: "comp-a", WorkerName: name}
}

func TestRolloutUpdatesAllWorkersInBatches(t *testing.T) {
	engine := runtime.NewMockEngine()
	engine.Register("comp-a", 1, nil)
	engine.Register("comp-a", 2, nil)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	manager := worker.NewManager(engine, newFakeOplog(), nil, worker.NewLimiter(0), broker)

	ids := []domain.WorkerId{testWorker("w1"), testWorker("w2"), testWorker("w3")}
	for _, id := range ids {
		_, err := manager.Activate(context.Background(), id, domain.ComponentMetadata{ComponentId: "comp-a", Version: 1})
		require.NoError(t, err)
	}

	r := NewRollout(manager)
	result, err := r.Run(context.Background(), Plan{
		Workers:     ids,
		Target:      domain.ComponentMetadata{ComponentId: "comp-a", Version: 2},
		Mode:        domain.UpdateModeAutomatic,
		Parallelism: 2,
		BatchDelay:  time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, result.Updated, 3)
	require.Empty(t, result.Failed)
}

func TestRolloutAbortsOnMissingWorker(t *testing.T) {
	engine := runtime.NewMockEngine()
	engine.Register("comp-a", 1, nil)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	manager := worker.NewManager(engine, newFakeOplog(), nil, worker.NewLimiter(0), broker)

	r := NewRollout(manager)
	_, err := r.Run(context.Background(), Plan{
		Workers:     []domain.WorkerId{testWorker("absent")},
		Target:      domain.ComponentMetadata{ComponentId: "comp-a", Version: 2},
		Mode:        domain.UpdateModeAutomatic,
		Parallelism: 1,
	})
	require.Error(t, err)
}
