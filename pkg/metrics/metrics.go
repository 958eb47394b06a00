package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fabrik_nodes_total",
			Help: "Total number of cluster nodes by role and status",
		},
		[]string{"role", "status"},
	)

	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fabrik_workers_total",
			Help: "Total number of workers by status",
		},
		[]string{"status"},
	)

	ComponentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fabrik_components_total",
			Help: "Total number of registered components",
		},
	)

	// Raft / oplog cluster metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fabrik_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fabrik_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fabrik_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fabrik_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabrik_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Oplog metrics
	OplogAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabrik_oplog_append_duration_seconds",
			Help:    "Time taken to append an oplog entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	OplogReplayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabrik_oplog_replay_duration_seconds",
			Help:    "Time taken to replay a worker's oplog from snapshot",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker_id"},
	)

	OplogEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_oplog_entries_total",
			Help: "Total number of oplog entries appended by kind",
		},
		[]string{"kind"},
	)

	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_oplog_snapshots_total",
			Help: "Total number of oplog snapshots taken",
		},
		[]string{"reason"},
	)

	// Worker resource metrics
	WorkerFuelConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_worker_fuel_consumed_total",
			Help: "Total fuel units consumed by a worker",
		},
		[]string{"component_id"},
	)

	WorkerMemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fabrik_worker_memory_bytes",
			Help: "Current memory usage of a worker in bytes",
		},
		[]string{"worker_id"},
	)

	WorkerTraps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_worker_traps_total",
			Help: "Total number of worker traps by kind",
		},
		[]string{"kind"},
	)

	FuelBorrowedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_fuel_borrowed_total",
			Help: "Total fuel units borrowed from the per-account Limiter",
		},
		[]string{"account_id"},
	)

	// RPC fabric metrics
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_invocations_total",
			Help: "Total number of invocations by mode and status",
		},
		[]string{"mode", "status"},
	)

	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabrik_invocation_duration_seconds",
			Help:    "Invocation duration in seconds by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	ShardForwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_shard_forwards_total",
			Help: "Total number of cross-shard forwards by outcome",
		},
		[]string{"outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fabrik_circuit_breaker_state",
			Help: "Circuit breaker state per peer host (0=closed,1=half-open,2=open)",
		},
		[]string{"host"},
	)

	ScheduledInvocationsFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabrik_scheduled_invocations_fired_total",
			Help: "Total number of scheduled invocations that reached their fire time",
		},
	)

	// Gateway metrics
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_gateway_requests_total",
			Help: "Total number of gateway requests by route and status",
		},
		[]string{"route", "status"},
	)

	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabrik_gateway_request_duration_seconds",
			Help:    "Gateway request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RibEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_rib_evaluations_total",
			Help: "Total number of Rib script evaluations by outcome",
		},
		[]string{"outcome"},
	)

	// Scheduler / reconciler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabrik_scheduling_latency_seconds",
			Help:    "Time taken to assign shards in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fabrik_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fabrik_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	// Rollout metrics
	RolloutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_rollouts_total",
			Help: "Total number of deployment rollouts by mode and status",
		},
		[]string{"mode", "status"},
	)

	RolloutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fabrik_rollout_duration_seconds",
			Help:    "Rollout duration in seconds by mode",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"mode"},
	)

	// Registry metrics
	RegistryWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fabrik_registry_writes_total",
			Help: "Total number of registry writes by entity and outcome",
		},
		[]string{"entity", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal, WorkersTotal, ComponentsTotal,
		RaftLeader, RaftPeers, RaftLogIndex, RaftAppliedIndex, RaftApplyDuration,
		OplogAppendDuration, OplogReplayDuration, OplogEntriesTotal, SnapshotsTotal,
		WorkerFuelConsumed, WorkerMemoryBytes, WorkerTraps, FuelBorrowedTotal,
		InvocationsTotal, InvocationDuration, ShardForwardsTotal, CircuitBreakerState, ScheduledInvocationsFired,
		GatewayRequestsTotal, GatewayRequestDuration, RibEvaluationsTotal,
		SchedulingLatency, ReconciliationDuration, ReconciliationCyclesTotal,
		RolloutsTotal, RolloutDuration,
		RegistryWritesTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
