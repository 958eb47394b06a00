package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/rpc"
	"github.com/cuemby/fabrik/pkg/storage"
	"github.com/rs/zerolog"
)

// Scheduler owns the shard-id -> runtime-host assignment for the cluster
// and keeps this process's rpc.ShardTable converged with it.
type Scheduler struct {
	store  storage.Store
	shards *rpc.ShardTable
	broker *events.Broker
	logger zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	stopCh   chan struct{}
}

// NewScheduler creates a shard scheduler for the given shard table.
func NewScheduler(store storage.Store, shards *rpc.ShardTable, broker *events.Broker) *Scheduler {
	return &Scheduler{
		store:    store,
		shards:   shards,
		broker:   broker,
		logger:   log.WithComponent("scheduler"),
		interval: 5 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the scheduler's assignment loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the scheduler loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Assign(); err != nil {
				s.logger.Error().Err(err).Msg("shard assignment cycle failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Assign runs one assignment cycle: list ready runtime hosts, compute a
// least-loaded placement for every shard currently unassigned or owned
// by a host that is no longer ready, and publish the changes.
func (s *Scheduler) Assign() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	nodes, err := s.store.ListClusterNodes()
	if err != nil {
		return fmt.Errorf("list cluster nodes: %w", err)
	}
	hosts := readyRuntimeHosts(nodes)
	if len(hosts) == 0 {
		s.logger.Warn().Msg("no ready runtime hosts available for shard assignment")
		return nil
	}
	live := make(map[string]bool, len(hosts))
	load := make(map[string]uint32, len(hosts))
	for _, h := range hosts {
		live[h] = true
		load[h] = 0
	}

	count := s.shards.ShardCount()
	for shard := uint32(0); shard < count; shard++ {
		if host, ok := s.shards.Owner(shard); ok && live[host] {
			load[host]++
		}
	}

	for shard := uint32(0); shard < count; shard++ {
		if host, ok := s.shards.Owner(shard); ok && live[host] {
			continue
		}
		host := leastLoaded(hosts, load)
		s.shards.Assign(shard, host)
		load[host]++
		s.logger.Info().Uint32("shard_id", shard).Str("host", host).Msg("assigned shard")
		s.broker.Publish(&events.Event{
			Type:     events.EventShardAssigned,
			Message:  fmt.Sprintf("shard %d assigned to %s", shard, host),
			Metadata: map[string]string{"shard_id": fmt.Sprint(shard), "host": host},
		})
	}
	return nil
}

// leastLoaded returns the host currently owning the fewest shards,
// breaking ties by position in hosts for deterministic output.
func leastLoaded(hosts []string, load map[string]uint32) string {
	best := hosts[0]
	for _, h := range hosts[1:] {
		if load[h] < load[best] {
			best = h
		}
	}
	return best
}

// readyRuntimeHosts filters cluster nodes down to runtime hosts that can
// receive shard assignments.
func readyRuntimeHosts(nodes []*domain.ClusterNode) []string {
	var out []string
	for _, n := range nodes {
		if n.Role == domain.ClusterNodeRoleRuntimeHost && n.Status == domain.ClusterNodeReady {
			out = append(out, n.Address)
		}
	}
	return out
}
