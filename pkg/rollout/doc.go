/*
Package rollout drives a component's worker Update Protocol (spec.md
§4.2, implemented per-actor by pkg/worker's Actor.Update) across every
durable worker of a component in batches, so a new component version
reaches a fleet of workers without updating all of them at once.

Follows the same shape as a rolling-update deployer that updates a
service's containers in fixed-size batches with a pause between
batches, so a bad image only takes down one batch before the operator
notices, retargeted at worker actors: a "batch of containers" becomes a
"batch of worker ids". A worker counts as updated when its Actor.Update
call returns without error; the rollout does not call Report() or wait
for the actor's Health.Phase to return to Live.

# Architecture

	┌──────────────────────────────────────────────────────────────┐
	│                      Rollout.Run                              │
	└────────────────┬───────────────────────────────────────────────┘
	                 │
	                 ▼
	┌──────────────────────────────────────────────────────────────┐
	│ for each batch of worker ids (size = Parallelism):             │
	│   1. call Manager.Lookup + Actor.Update(ctx, target, mode)     │
	│      concurrently across the batch                             │
	│   2. collect per-worker errors; a batch with any Failed worker │
	│      aborts the rollout (fail-fast, spec.md FailedUpdate)      │
	│   3. sleep BatchDelay before starting the next batch            │
	└──────────────────────────────────────────────────────────────────┘

A rollout only touches actors already active on this host (the ones a
Manager.Lookup can find). A worker id that Manager.Lookup cannot find is
recorded as a failure ("not active on this host"), so its batch fails
and the rollout aborts there; nothing is written for that worker.

# See also

  - pkg/worker for the per-actor Update Protocol this package batches
  - pkg/reconciler, which polls the actors' Health.Phase (this package does not read it)
  - pkg/registry for the deployment revision that supplies a rollout's target component version
*/
package rollout
