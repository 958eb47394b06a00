package domain

import "time"

// Account is the top-level ownership boundary for registry entities and
// for fuel/memory budget accounting (see pkg/worker's Limiter).
type Account struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Application groups related environments under one account. Like
// Environment, its mutable fields live in ApplicationRevision rows; the
// Application row itself only tracks identity and the current pointer.
type Application struct {
	ID              string
	AccountID       string
	Name            string
	CurrentRevision int
	CreatedAt       time.Time
	DeletedAt       *time.Time
}

// ApplicationRevision is one immutable snapshot of an application's
// own metadata (currently just its display name, a placeholder for
// fields a future revision might add without touching Application's
// identity columns).
type ApplicationRevision struct {
	ApplicationID string
	RevisionID    int
	Name          string
	CreatedAt     time.Time
	CreatedBy     string
}

// Environment is a revisioned deployment target within an application.
// Every mutation creates a new EnvironmentRevision rather than updating one
// in place (Invariant R1: revision history is append-only).
type Environment struct {
	ID               string
	ApplicationID    string
	Name             string
	CurrentRevision  int
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// EnvironmentRevision is one immutable snapshot of an environment's
// configuration: its component version pins.
type EnvironmentRevision struct {
	EnvironmentID string
	RevisionID    int
	Components    map[string]int // component id -> pinned version
	CreatedAt     time.Time
	CreatedBy     string
}

// Deployment activates one environment revision, making it the one the
// Gateway and RPC fabric route traffic to.
type Deployment struct {
	ID            string
	EnvironmentID string
	RevisionID    int
	Status        DeploymentStatus
	ActivatedAt   *time.Time
	CreatedAt     time.Time
}

// DeploymentStatus tracks a deployment's rollout progress.
type DeploymentStatus string

const (
	DeploymentPending   DeploymentStatus = "pending"
	DeploymentRolling   DeploymentStatus = "rolling"
	DeploymentActive    DeploymentStatus = "active"
	DeploymentFailed    DeploymentStatus = "failed"
	DeploymentSuperseded DeploymentStatus = "superseded"
)

// EnvironmentShare grants another account visibility (and optionally
// write access) into an environment (Invariant R2: shares are additive
// and never implicitly inherited across applications).
type EnvironmentShare struct {
	ID               string
	EnvironmentID    string
	GranteeAccountID string
	CanWrite         bool
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

// ConcurrentModification is returned when a registry write's compare-and-
// swap on CurrentRevision loses a race to a concurrent writer.
type ConcurrentModification struct {
	Entity   string
	ID       string
	Expected int
	Actual   int
}

func (e *ConcurrentModification) Error() string {
	return "concurrent modification of " + e.Entity + " " + e.ID
}
