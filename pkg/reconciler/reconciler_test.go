package reconciler

import (
	"testing"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/storage"
	"github.com/cuemby/fabrik/pkg/worker"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestReconcileMarksStaleNodeDown(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateClusterNode(&domain.ClusterNode{
		ID:            "host-a",
		Role:          domain.ClusterNodeRoleRuntimeHost,
		Address:       "host-a",
		Status:        domain.ClusterNodeReady,
		LastHeartbeat: time.Now().Add(-time.Hour),
	}))

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	workers := worker.NewManager(nil, nil, store, nil, broker)
	r := NewReconciler(store, workers, broker)
	require.NoError(t, r.Reconcile())

	nodes, err := store.ListClusterNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, domain.ClusterNodeDown, nodes[0].Status)

	select {
	case ev := <-sub:
		require.Equal(t, events.EventClusterNodeDown, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a node-down event")
	}
}

func TestReconcileLeavesFreshNodeReady(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateClusterNode(&domain.ClusterNode{
		ID:            "host-a",
		Role:          domain.ClusterNodeRoleRuntimeHost,
		Address:       "host-a",
		Status:        domain.ClusterNodeReady,
		LastHeartbeat: time.Now(),
	}))

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	workers := worker.NewManager(nil, nil, store, nil, broker)
	r := NewReconciler(store, workers, broker)
	require.NoError(t, r.Reconcile())

	nodes, err := store.ListClusterNodes()
	require.NoError(t, err)
	require.Equal(t, domain.ClusterNodeReady, nodes[0].Status)
}

func TestReconcileNoNodesIsANoOp(t *testing.T) {
	store := newTestStore(t)
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	workers := worker.NewManager(nil, nil, store, nil, broker)
	r := NewReconciler(store, workers, broker)
	require.NoError(t, r.Reconcile())
}
