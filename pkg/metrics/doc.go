/*
Package metrics provides Prometheus metrics collection and exposition for Fabrik.

The metrics package defines and registers all Fabrik metrics using the Prometheus
client library, providing observability into cluster health, resource utilization,
operation latency, and system performance. Metrics are exposed via HTTP endpoint
for scraping by Prometheus servers.

# Architecture

Fabrik's metrics system follows Prometheus best practices with comprehensive
instrumentation across all components:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (node count)         │          │
	│  │  Counter: Monotonic increases (requests)    │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  │  Summary: Quantiles (percentiles)           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Cluster: Nodes, workers, components        │          │
	│  │  Raft: Leader status, log index, peers      │          │
	│  │  Oplog: Append/replay latency, entries      │          │
	│  │  Worker: Fuel, memory, traps                │          │
	│  │  RPC: Invocations, forwards, breakers       │          │
	│  │  Gateway: Requests, Rib evaluations         │          │
	│  │  Scheduler/Reconciler: Latency, cycles      │          │
	│  │  Rollout/Registry: Rollouts, writes         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics every 15s               │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: node count, worker count, Raft leader status
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: invocations total, oplog entries total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: gateway request duration, scheduling latency
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Cluster Metrics:

fabrik_nodes_total{role, status}:
  - Type: Gauge
  - Description: Cluster nodes by role and status
  - Labels: role, status (pkg/reconciler reports role="runtime-host")

fabrik_workers_total{status}:
  - Type: Gauge
  - Description: Locally active workers by phase, from Actor.Report()
  - Labels: status

fabrik_components_total:
  - Type: Gauge
  - Description: Total number of registered components

Raft Metrics:

fabrik_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is Raft leader (1=leader, 0=follower)
  - Example: fabrik_raft_is_leader 1

fabrik_raft_peers_total:
  - Type: Gauge
  - Description: Total Raft peers in cluster
  - Example: fabrik_raft_peers_total 3

fabrik_raft_log_index:
  - Type: Gauge
  - Description: Current Raft log index
  - Example: fabrik_raft_log_index 1543

fabrik_raft_applied_index:
  - Type: Gauge
  - Description: Last applied Raft log index
  - Example: fabrik_raft_applied_index 1543

Oplog Metrics:

  - fabrik_oplog_append_duration_seconds (Histogram): time to append one entry
  - fabrik_oplog_replay_duration_seconds{worker_id} (Histogram): time to read
    or replay a worker's oplog
  - fabrik_oplog_entries_total{kind} (Counter): entries appended, by kind
  - fabrik_oplog_snapshots_total{reason} (Counter): snapshots taken;
    pkg/oplog reports reason="cadence"

Worker Metrics:

  - fabrik_worker_fuel_consumed_total{component_id} (Counter)
  - fabrik_worker_memory_bytes{worker_id} (Gauge)
  - fabrik_worker_traps_total{kind} (Counter)
  - fabrik_fuel_borrowed_total{account_id} (Counter): fuel borrowed from
    the per-account Limiter

RPC Fabric Metrics:

  - fabrik_invocations_total{mode, status} (Counter)
  - fabrik_invocation_duration_seconds{mode} (Histogram)
  - fabrik_shard_forwards_total{outcome} (Counter): cross-shard forwards
  - fabrik_circuit_breaker_state{host} (Gauge): 0=closed, 1=half-open, 2=open
  - fabrik_scheduled_invocations_fired_total (Counter)

Gateway Metrics:

  - fabrik_gateway_requests_total{route, status} (Counter): route is
    "METHOD pattern", or "unresolved" when no route matched
  - fabrik_gateway_request_duration_seconds{route} (Histogram)
  - fabrik_rib_evaluations_total{outcome} (Counter): "ok" or "error"

All histograms above use the default Prometheus buckets.

Scheduler Metrics:

fabrik_scheduling_latency_seconds:
  - Type: Histogram
  - Description: Time taken to assign shards in seconds
  - Buckets: Default Prometheus buckets

Raft Operation Metrics:

fabrik_raft_apply_duration_seconds:
  - Type: Histogram
  - Description: Time to apply Raft log entry

Reconciler Metrics:

fabrik_reconciliation_duration_seconds:
  - Type: Histogram
  - Description: Reconciliation cycle duration

fabrik_reconciliation_cycles_total:
  - Type: Counter
  - Description: Total reconciliation cycles completed

Rollout Metrics:

  - fabrik_rollouts_total{mode, status} (Counter)
  - fabrik_rollout_duration_seconds{mode} (Histogram, buckets 1s to 1800s)

Registry Metrics:

  - fabrik_registry_writes_total{entity, outcome} (Counter)

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/fabrik/pkg/metrics"

	// Set absolute value
	metrics.NodesTotal.WithLabelValues("runtime-host", status).Set(5)

	// Increment/decrement
	metrics.ComponentsTotal.Inc()
	metrics.ComponentsTotal.Dec()

Updating Counter Metrics:

	// Increment by 1
	metrics.ScheduledInvocationsFired.Inc()

	// Add arbitrary value
	metrics.OplogEntriesTotal.WithLabelValues(string(kind)).Add(1)

Recording Histogram Observations:

	// Direct observation
	metrics.SchedulingLatency.Observe(0.125) // 125ms

	// Using Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.OplogAppendDuration)

Using Timer with Labels:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.GatewayRequestDuration, "GET /foo/{id}")

Complete Example:

	package main

	import (
		"net/http"
		"time"
		"github.com/cuemby/fabrik/pkg/metrics"
	)

	func main() {
		// Update cluster metrics
		metrics.RaftLeader.Set(1)
		metrics.RaftPeers.Set(3)

		// Time an operation
		timer := metrics.NewTimer()
		assignShards()
		timer.ObserveDuration(metrics.SchedulingLatency)

		// Expose metrics endpoint
		http.Handle("/metrics", metrics.Handler())
		http.ListenAndServe(":9090", nil)
	}

	func assignShards() {
		// Shard assignment logic
		time.Sleep(100 * time.Millisecond)
	}

# Integration Points

This package integrates with:

  - pkg/cluster: Raft gauges, node counts, Raft apply duration
  - pkg/oplog: append/replay duration, entry and snapshot counters
  - pkg/worker: oplog replay duration, Limiter fuel borrowing
  - pkg/rpc: invocation, shard-forward and circuit-breaker metrics,
    scheduled invocations fired
  - pkg/gateway: request count/duration, Rib evaluation outcomes
  - pkg/scheduler: Records scheduling latency
  - pkg/reconciler: Tracks reconciliation cycles, node and worker gauges
  - pkg/rollout: rollout count and duration
  - cmd/fabrik: serves Handler() and the health handlers on its admin
    endpoint
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (IDs, timestamps)
  - Document label values in metric description
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any Fabrik package
  - Thread-safe concurrent updates
  - No initialization required by callers

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Labels: +100ns per label value
  - Negligible impact on hot path

Memory Usage:
  - Per metric: ~1KB baseline
  - Per label combination: ~100 bytes
  - Histogram buckets: ~50 bytes each
  - Total: ~1-5MB for typical Fabrik cluster

Scrape Performance:
  - Metrics gathering: ~1-5ms for full scrape
  - HTTP response: ~10ms for typical metric set
  - Recommendation: Scrape interval ≥ 15s
  - Concurrent scrapes: Safe (read-only)

Cardinality Management:
  - Low cardinality: role, status, state (< 10 values)
  - Medium cardinality: method, host (< 100 values)
  - Avoid: task IDs, timestamps (unbounded)
  - Best practice: Aggregate high-cardinality in logs

# Troubleshooting

Common Issues:

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify metric variable is exported

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Using IDs or unbounded values as labels
  - Check: Label cardinality (count unique combinations)
  - Solution: Remove high-cardinality labels, aggregate differently

Histogram Bucket Mismatch:
  - Symptom: No data in desired percentiles
  - Cause: Buckets don't cover observed value range
  - Check: Histogram sum / count for average
  - Solution: Customize buckets for value range

Stale Metrics:
  - Symptom: Metrics not updating
  - Cause: Code not calling metric update methods
  - Check: Add logging around metric updates
  - Solution: Instrument code paths correctly

# Monitoring

Prometheus Queries (PromQL):

Cluster Health:
  - Nodes by status: sum by (status) (fabrik_nodes_total)
  - Workers by phase: fabrik_workers_total

Gateway Performance:
  - Request rate: sum by (route) (rate(fabrik_gateway_requests_total[1m]))
  - Error rate: rate(fabrik_gateway_requests_total{status=~"5.."}[1m])
  - p95 latency: histogram_quantile(0.95, fabrik_gateway_request_duration_seconds_bucket)
  - Rib failures: rate(fabrik_rib_evaluations_total{outcome="error"}[5m])

Oplog and Fabric:
  - p95 append latency: histogram_quantile(0.95, fabrik_oplog_append_duration_seconds_bucket)
  - Invocations: sum by (mode, status) (rate(fabrik_invocations_total[1m]))
  - Open breakers: fabrik_circuit_breaker_state == 2

Raft Health:
  - Has leader: max(fabrik_raft_is_leader) > 0
  - Leader changes: changes(fabrik_raft_is_leader[10m])
  - Log lag: fabrik_raft_log_index - fabrik_raft_applied_index
  - Peer count: fabrik_raft_peers_total

Scheduler Performance:
  - p95 scheduling latency: histogram_quantile(0.95, fabrik_scheduling_latency_seconds_bucket)
  - Reconciliation rate: rate(fabrik_reconciliation_cycles_total[5m])

# Alerting Rules

Recommended Prometheus alerts:

No Raft Leader:
  - Alert: max(fabrik_raft_is_leader) == 0
  - Description: Cluster has no Raft leader
  - Action: Check manager connectivity, quorum status

Frequent Leader Changes:
  - Alert: changes(fabrik_raft_is_leader[10m]) > 3
  - Description: Leader changed more than 3 times in 10 minutes
  - Action: Check network latency, manager load

High Gateway Latency:
  - Alert: histogram_quantile(0.95, fabrik_gateway_request_duration_seconds_bucket) > 1
  - Description: p95 gateway latency > 1 second
  - Action: Check Raft performance, oplog append latency

# Grafana Dashboards

Recommended dashboard panels:

Cluster Overview:
  - Gauge: Nodes by status
  - Time series: Workers by phase

Gateway Performance:
  - Time series: Request rate by route
  - Time series: p95 latency
  - Time series: Error rate (5xx responses)

Raft Health:
  - Single stat: Leader status (yes/no)
  - Time series: Log index and applied index
  - Single stat: Peer count
  - Time series: Leader changes

Scheduler Performance:
  - Heatmap: Scheduling latency distribution
  - Time series: Reconciliation cycles per second

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
