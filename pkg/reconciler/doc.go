/*
Package reconciler periodically reconciles two things that no single
write path keeps converged on its own: cluster node liveness (a
runtime host that stops heartbeating must be marked Down so the
scheduler stops routing new shards to it) and worker health (a host's
active worker.Actor set, polled for Report() and folded into
fabrik_workers_total so operators can see Failed/Suspended/Replaying
counts cluster-wide).

Follows the same ticker-driven, mutex-guarded run loop and Start/Stop
lifecycle as a reconciler that compares desired replica counts against
actual running containers and recreates/removes them, retargeted the
same way pkg/scheduler retargets a bin-packing scheduler: what is being
reconciled changes from "container count per service" to "cluster node
heartbeat freshness" and "worker actor health summary".

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                  Reconciler Loop (ticker)                  │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. List cluster nodes; mark stale-heartbeat nodes Down     │
	│  2. Poll the local worker.Manager's actors for Health       │
	│  3. Publish node-down events on the Broker                  │
	│  4. Record fabrik_reconciliation_cycles_total/_duration     │
	└───────────────────────────────────────────────────────────────┘

pkg/rollout's batched update rollout does not read this Health.Phase
signal: it advances to the next batch once every Actor.Update call in
the current batch has returned without error.

# See also

  - pkg/scheduler for the shard assignment this package's liveness detection feeds
  - pkg/worker for the Actor.Report() health snapshot this package polls
  - pkg/rollout for the batched update rollout (which does not read worker health)
*/
package reconciler
