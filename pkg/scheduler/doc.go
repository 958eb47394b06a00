/*
Package scheduler assigns the fixed shard-id space to currently live
runtime hosts, writing the assignment into its own process's
rpc.ShardTable; it does not update other hosts' tables.

The assignment loop is the same shape as a bin-packing scheduler that
assigns N replicas of a service evenly across worker nodes and
rebalances on node join/leave, retargeted at a different unit: assign
DefaultShardCount shards evenly across registered
domain.ClusterNodeRoleRuntimeHost nodes and reassign a host's shards
when it leaves or is marked down. A host that joins receives only
shards that are unassigned at that point; shards already owned by a
ready host are not moved to it. Counting and picking the least-loaded host
is unchanged from that lineage; only the unit being placed changes from
a container to a shard.

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                   Scheduler Loop (ticker)                  │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. List ready runtime-host cluster nodes from storage.Store│
	│  2. Compute a least-loaded assignment for every shard_id    │
	│  3. Keep shards whose owner is still ready; reassign others │
	│  4. Assign changed entries in this process's ShardTable and │
	│     publish EventShardAssigned on the node-local Broker     │
	└───────────────────────────────────────────────────────────────┘

A host that loses its last shard because it went Down keeps running any
workers it already has active locally (pkg/worker.Manager) until they are
explicitly deactivated; the scheduler only governs where *new* direct-path
routing decisions land, matching spec.md §4.3's "re-resolve on
InvalidShardId" rather than force-migrating live workers.

# See also

  - pkg/rpc's ShardTable for the per-host routing cache this package keeps converged
  - pkg/reconciler for host liveness detection feeding this package's input
  - pkg/cluster for the registered runtime-host node list
*/
package scheduler
