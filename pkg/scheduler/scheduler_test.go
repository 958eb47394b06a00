package scheduler

import (
	"testing"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/rpc"
	"github.com/cuemby/fabrik/pkg/storage"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAssignSpreadsEvenlyAcrossReadyHosts(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateClusterNode(&domain.ClusterNode{
		ID: "host-a", Role: domain.ClusterNodeRoleRuntimeHost, Address: "host-a", Status: domain.ClusterNodeReady,
	}))
	require.NoError(t, store.CreateClusterNode(&domain.ClusterNode{
		ID: "host-b", Role: domain.ClusterNodeRoleRuntimeHost, Address: "host-b", Status: domain.ClusterNodeReady,
	}))

	shards := rpc.NewShardTable(8, "host-a")
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	s := NewScheduler(store, shards, broker)
	require.NoError(t, s.Assign())

	counts := map[string]int{}
	for shard := uint32(0); shard < 8; shard++ {
		host, ok := shards.Owner(shard)
		require.True(t, ok, "shard %d should be assigned", shard)
		counts[host]++
	}
	require.Len(t, counts, 2)
	for host, n := range counts {
		require.InDeltaf(t, 4, n, 1, "host %s got %d shards, expected roughly even split", host, n)
	}
}

func TestAssignReassignsShardsFromDownHost(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateClusterNode(&domain.ClusterNode{
		ID: "host-a", Role: domain.ClusterNodeRoleRuntimeHost, Address: "host-a", Status: domain.ClusterNodeReady,
	}))

	shards := rpc.NewShardTable(4, "host-a")
	shards.Assign(0, "host-dead")
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	s := NewScheduler(store, shards, broker)
	require.NoError(t, s.Assign())

	host, ok := shards.Owner(0)
	require.True(t, ok)
	require.Equal(t, "host-a", host)
}

func TestAssignNoReadyHostsIsANoOp(t *testing.T) {
	store := newTestStore(t)
	shards := rpc.NewShardTable(4, "host-a")
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	s := NewScheduler(store, shards, broker)
	require.NoError(t, s.Assign())
	_, ok := shards.Owner(0)
	require.False(t, ok)
}
