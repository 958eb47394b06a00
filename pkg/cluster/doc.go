/*
Package cluster implements the fabrik control-plane node: the Raft
consensus group that makes the oplog durable.

# Architecture

A fabrik cluster consists of 1-7 control-plane nodes forming a Raft
quorum. Every mutation to a worker's oplog, to cluster node membership,
or to a promise's completion status is proposed as a Command, replicated
via Raft, and applied to the FSM before it is visible to any reader:

	Cluster.Apply(cmd) -> raft.Apply -> FSM.Apply -> storage.Store

Reads bypass Raft and go straight to the local store, since every node
in the quorum replays the same committed log.

# Core components

Cluster coordinates Raft lifecycle (Bootstrap, Join, AddVoter,
RemoveServer), exposes read methods backed by the local store, and owns
the node's TokenManager and CertAuthority.

FSM is the raft.FSM implementation: Apply switches on a Command's Op
field (one of the Op* constants) and forwards to the matching
storage.Store mutator. Snapshot/Restore capture and replay the full
set of cluster nodes and worker oplogs, the same mechanism the oplog
Service uses for the O2 replay invariant.

TokenManager issues short-lived join tokens so new nodes can
authenticate during Join without a pre-shared cluster secret.

# Raft tuning

HeartbeatTimeout and ElectionTimeout are reduced from Raft's 1s WAN
defaults to 500ms, and LeaderLeaseTimeout to 250ms, targeting control
plane failover in the 2-3s range on a LAN deployment.

# Cluster sizes

  - 1 node: development only, no HA
  - 3 nodes: tolerates 1 failure
  - 5 nodes: tolerates 2 failures

Write operations require majority quorum; a minority partition is
read-only until it rejoins.
*/
package cluster
