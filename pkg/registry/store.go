package registry

import (
	"errors"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
)

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("registry: entity not found")

// ErrVisibilityDenied is returned when a caller account cannot see an
// environment chain under Invariant R2 and did not pass an override.
var ErrVisibilityDenied = errors.New("registry: caller does not have visibility into this environment")

// Store is the persistence contract the Registry drives the revision
// protocol against. Two implementations are provided: boltStore (the
// default, bucket-per-entity, JSON-encoded) and pgxStore (PostgreSQL,
// schema-migrated, real RETURNING-based CAS).
type Store interface {
	CreateAccount(a *domain.Account) error
	GetAccount(id string) (*domain.Account, error)

	CreateApplication(a *domain.Application) error
	GetApplication(id string) (*domain.Application, error)
	ListApplicationsByAccount(accountID string) ([]*domain.Application, error)
	// InsertApplicationRevision atomically inserts rev and, iff the
	// application's current_revision equals expectedCurrent, advances the
	// pointer to rev.RevisionID. Returns a *domain.ConcurrentModification
	// on a lost race.
	InsertApplicationRevision(rev *domain.ApplicationRevision, expectedCurrent int) error
	SoftDeleteApplication(id string) error

	CreateEnvironment(e *domain.Environment) error
	GetEnvironment(id string) (*domain.Environment, error)
	ListEnvironmentsByApplication(applicationID string) ([]*domain.Environment, error)
	InsertEnvironmentRevision(rev *domain.EnvironmentRevision, expectedCurrent int) error
	GetEnvironmentRevision(environmentID string, revisionID int) (*domain.EnvironmentRevision, error)
	SoftDeleteEnvironment(id string) error

	CreateDeployment(d *domain.Deployment) error
	GetDeployment(id string) (*domain.Deployment, error)
	ListDeploymentsByEnvironment(environmentID string) ([]*domain.Deployment, error)
	UpdateDeploymentStatus(id string, status domain.DeploymentStatus, activatedAt *time.Time) error

	CreateEnvironmentShare(s *domain.EnvironmentShare) error
	ListSharesByEnvironment(environmentID string) ([]*domain.EnvironmentShare, error)
	ListSharesByGrantee(accountID string) ([]*domain.EnvironmentShare, error)
	SoftDeleteEnvironmentShare(id string) error

	Close() error
}
