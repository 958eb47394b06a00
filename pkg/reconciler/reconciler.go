package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/events"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/metrics"
	"github.com/cuemby/fabrik/pkg/storage"
	"github.com/cuemby/fabrik/pkg/worker"
	"github.com/rs/zerolog"
)

// HeartbeatTimeout is how long a cluster node may go without a heartbeat
// before the reconciler marks it Down.
const HeartbeatTimeout = 15 * time.Second

// Reconciler keeps cluster node liveness and worker health summaries
// converged with reality, polling on a fixed interval rather than
// reacting to any single event.
type Reconciler struct {
	store   storage.Store
	workers *worker.Manager
	broker  *events.Broker
	logger  zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	stopCh   chan struct{}
}

// NewReconciler creates a Reconciler for this host's worker.Manager and
// the cluster-wide storage.Store.
func NewReconciler(store storage.Store, workers *worker.Manager, broker *events.Broker) *Reconciler {
	return &Reconciler{
		store:    store,
		workers:  workers,
		broker:   broker,
		logger:   log.WithComponent("reconciler"),
		interval: 5 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Reconcile runs one cycle: stale-heartbeat nodes are marked Down, and
// every locally active worker's Health is folded into the cluster-wide
// worker-status gauge.
func (r *Reconciler) Reconcile() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	if err := r.reconcileNodeLiveness(); err != nil {
		return fmt.Errorf("reconcile node liveness: %w", err)
	}
	r.reconcileWorkerHealth()
	return nil
}

func (r *Reconciler) reconcileNodeLiveness() error {
	nodes, err := r.store.ListClusterNodes()
	if err != nil {
		return err
	}

	now := time.Now()
	statusCounts := map[domain.ClusterNodeStatus]int{}
	for _, node := range nodes {
		if node.Status == domain.ClusterNodeReady && now.Sub(node.LastHeartbeat) > HeartbeatTimeout {
			node.Status = domain.ClusterNodeDown
			if err := r.store.UpdateClusterNode(node); err != nil {
				r.logger.Error().Err(err).Str("node_id", node.ID).Msg("failed to mark node down")
				continue
			}
			r.logger.Warn().Str("node_id", node.ID).Str("address", node.Address).Msg("cluster node heartbeat stale, marked down")
			r.broker.Publish(&events.Event{
				Type:     events.EventClusterNodeDown,
				Message:  fmt.Sprintf("node %s marked down (stale heartbeat)", node.ID),
				Metadata: map[string]string{"node_id": node.ID},
			})
		}
		statusCounts[node.Status]++
	}
	for status, n := range statusCounts {
		metrics.NodesTotal.WithLabelValues("runtime-host", string(status)).Set(float64(n))
	}
	return nil
}

func (r *Reconciler) reconcileWorkerHealth() {
	actors := r.workers.List()
	counts := map[worker.Phase]int{}
	for _, a := range actors {
		health := a.Report()
		counts[health.Phase]++
		if health.LastError != "" {
			r.logger.Warn().Str("worker", health.Worker).Str("error", health.LastError).Msg("worker reported last error")
		}
	}
	for phase, n := range counts {
		metrics.WorkersTotal.WithLabelValues(string(phase)).Set(float64(n))
	}
}
