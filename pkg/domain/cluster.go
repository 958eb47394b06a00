package domain

import "time"

// ClusterNode is a member of the oplog's Raft cluster (a control-plane
// voter or a worker-runtime host registered against it), distinct from a
// WorkerId which identifies a user component instance.
type ClusterNode struct {
	ID            string
	Role          ClusterNodeRole
	Address       string
	Labels        map[string]string
	Status        ClusterNodeStatus
	LastHeartbeat time.Time
	CreatedAt     time.Time
}

// ClusterNodeRole distinguishes control-plane voters from runtime hosts.
type ClusterNodeRole string

const (
	ClusterNodeRoleControlPlane ClusterNodeRole = "control-plane"
	ClusterNodeRoleRuntimeHost  ClusterNodeRole = "runtime-host"
)

// ClusterNodeStatus is the liveness state the reconciler maintains.
type ClusterNodeStatus string

const (
	ClusterNodeReady    ClusterNodeStatus = "ready"
	ClusterNodeDown     ClusterNodeStatus = "down"
	ClusterNodeDraining ClusterNodeStatus = "draining"
	ClusterNodeUnknown  ClusterNodeStatus = "unknown"
)
