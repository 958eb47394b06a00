/*
Package events provides an in-process pub/sub broker used to fan out
cluster-local state changes to subscribers on the same node. The
publishers are listed under Integration Points; no package in this
module subscribes to it outside its tests.

# Architecture

	┌──────────────────────── BROKER ───────────────────────────┐
	│  Publish(event) -> run() loop -> broadcast to subscribers   │
	│                                                              │
	│  Subscribe()                 -> Subscriber chan (buffer 50)  │
	│  SubscribeFiltered(types...) -> chan + unsubscribe func,      │
	│                                 only matching EventTypes       │
	│  Unsubscribe(sub)            -> closes and removes the chan   │
	└──────────────────────────────────────────────────────────────┘

Publish hands the event to a 100-slot queue and returns; it blocks only
while that queue is full (or until the broker stops). broadcast runs on
the broker's own goroutine, and an event that does not fit in a
subscriber's buffer is skipped for that subscriber rather than stalling
the loop; the subscriber stays registered (see Broker.broadcast).

# Event Types

Worker lifecycle: EventWorkerCreated, EventWorkerSuspended,
EventWorkerResumed, EventWorkerFailed, EventWorkerExited.

Oplog: EventOplogAppended, EventOplogSnapshot.

Invocation: EventInvocationStarted, EventInvocationDone,
EventPromiseCompleted.

Cluster membership: EventClusterNodeJoined, EventClusterNodeLeft,
EventClusterNodeDown.

Scheduling and deployment: EventShardAssigned, EventDeploymentChanged.

# Usage

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		switch ev.Type {
		case events.EventWorkerFailed:
			...
		}
	}

	broker.Publish(&events.Event{
		Type:    events.EventWorkerFailed,
		Message: "fuel exhausted",
		Metadata: map[string]string{"worker": id.String()},
	})

# Integration Points

  - pkg/oplog publishes EventOplogAppended/EventOplogSnapshot as the
    journal advances.
  - pkg/reconciler does not subscribe; it polls storage and worker
    actors on a ticker.
  - pkg/scheduler publishes EventShardAssigned when it rebalances.
  - pkg/cluster publishes EventClusterNodeJoined/EventClusterNodeLeft
    from AddVoter/RemoveServer; pkg/reconciler publishes
    EventClusterNodeDown.

This bus is node-local: a Deployment activation in one process
(e.g. the registry) is not automatically visible as an event on
another process's broker. cmd/fabrik's all-in-one topology is the one
place a single broker instance is shared across every subsystem in
this module; a split topology needs its own cross-process signal for
anything that must react to another process's events.

# See Also

  - pkg/cluster - Raft-replicated state that this broker announces
*/
package events
