package registry

import (
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/google/uuid"
)

// Registry is the orchestration layer spec.md §4.6 describes on top of
// Store. UpdateEnvironment runs the full four-step revision protocol
// (validate visibility, insert a new revision, atomically swap the
// current-pointer, return the composed view); the other environment
// writes and GetEnvironmentView also run the visibility gate (Invariant
// R2), while application writes, CreateEnvironment and RevokeShare run
// no visibility check. Store
// already provides step 2+3 as a single atomic call (InsertXRevision);
// Registry adds the visibility gate and the composed view around it,
// the way warren's Manager sits above its raw storage.Store.
type Registry struct {
	store Store
}

// NewRegistry wraps store with the revision protocol and visibility
// checks. store may be a boltStore or a pgxStore; Registry is agnostic.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// EnvironmentView is the composed view spec.md §4.6 step 4 returns:
// the entity, its current revision, and its active deployment (if any).
type EnvironmentView struct {
	Environment       *domain.Environment
	Revision          *domain.EnvironmentRevision
	CurrentDeployment *domain.Deployment
}

// CheckVisibility implements Invariant R2: an environment is visible to
// accountID iff it owns the chain (via the owning application's
// AccountID), a non-deleted share grants it access, or override is set.
func (r *Registry) CheckVisibility(accountID string, environmentID string, override bool) (bool, error) {
	if override {
		return true, nil
	}
	env, err := r.store.GetEnvironment(environmentID)
	if err != nil {
		return false, err
	}
	app, err := r.store.GetApplication(env.ApplicationID)
	if err != nil {
		return false, err
	}
	if app.AccountID == accountID {
		return true, nil
	}
	shares, err := r.store.ListSharesByEnvironment(environmentID)
	if err != nil {
		return false, err
	}
	for _, s := range shares {
		if s.DeletedAt == nil && s.GranteeAccountID == accountID {
			return true, nil
		}
	}
	return false, nil
}

// requireVisibility is the step-1 gate every write below runs before
// touching the store, unless the caller set override.
func (r *Registry) requireVisibility(accountID, environmentID string, override bool) error {
	ok, err := r.CheckVisibility(accountID, environmentID, override)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVisibilityDenied
	}
	return nil
}

// CreateApplication creates a brand-new application owned by accountID,
// with its first revision (revision 1) inserted atomically.
func (r *Registry) CreateApplication(accountID, name, createdBy string) (*domain.Application, *domain.ApplicationRevision, error) {
	app := &domain.Application{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		Name:            name,
		CurrentRevision: 0,
		CreatedAt:       time.Now(),
	}
	if err := r.store.CreateApplication(app); err != nil {
		return nil, nil, err
	}
	rev := &domain.ApplicationRevision{
		ApplicationID: app.ID,
		RevisionID:    1,
		Name:          name,
		CreatedAt:     time.Now(),
		CreatedBy:     createdBy,
	}
	if err := r.store.InsertApplicationRevision(rev, 0); err != nil {
		return nil, nil, err
	}
	app.CurrentRevision = 1
	return app, rev, nil
}

// RenameApplication inserts a new ApplicationRevision, failing with
// ConcurrentModification if expectedCurrent is stale (Invariant R1).
func (r *Registry) RenameApplication(applicationID, name, createdBy string, expectedCurrent int) (*domain.ApplicationRevision, error) {
	rev := &domain.ApplicationRevision{
		ApplicationID: applicationID,
		RevisionID:    expectedCurrent + 1,
		Name:          name,
		CreatedAt:     time.Now(),
		CreatedBy:     createdBy,
	}
	if err := r.store.InsertApplicationRevision(rev, expectedCurrent); err != nil {
		return nil, err
	}
	return rev, nil
}

// DeleteApplication soft-deletes applicationID, preserving its revision
// history (spec.md §4.6 "soft-deletes preserve history").
func (r *Registry) DeleteApplication(applicationID string) error {
	return r.store.SoftDeleteApplication(applicationID)
}

// CreateEnvironment creates a new environment under applicationID with
// its first revision pinning components.
func (r *Registry) CreateEnvironment(applicationID, name string, components map[string]int, createdBy string) (*domain.Environment, *domain.EnvironmentRevision, error) {
	env := &domain.Environment{
		ID:              uuid.NewString(),
		ApplicationID:   applicationID,
		Name:            name,
		CurrentRevision: 0,
		CreatedAt:       time.Now(),
	}
	if err := r.store.CreateEnvironment(env); err != nil {
		return nil, nil, err
	}
	rev := &domain.EnvironmentRevision{
		EnvironmentID: env.ID,
		RevisionID:    1,
		Components:    components,
		CreatedAt:     time.Now(),
		CreatedBy:     createdBy,
	}
	if err := r.store.InsertEnvironmentRevision(rev, 0); err != nil {
		return nil, nil, err
	}
	env.CurrentRevision = 1
	return env, rev, nil
}

// UpdateEnvironment runs the full four-step revision protocol: validate
// visibility, insert a new EnvironmentRevision pinning components,
// atomically advance the current-pointer, and return the composed view.
func (r *Registry) UpdateEnvironment(accountID, environmentID string, components map[string]int, createdBy string, override bool) (*EnvironmentView, error) {
	if err := r.requireVisibility(accountID, environmentID, override); err != nil {
		return nil, err
	}
	env, err := r.store.GetEnvironment(environmentID)
	if err != nil {
		return nil, err
	}
	rev := &domain.EnvironmentRevision{
		EnvironmentID: environmentID,
		RevisionID:    env.CurrentRevision + 1,
		Components:    components,
		CreatedAt:     time.Now(),
		CreatedBy:     createdBy,
	}
	if err := r.store.InsertEnvironmentRevision(rev, env.CurrentRevision); err != nil {
		return nil, err
	}
	return r.GetEnvironmentView(accountID, environmentID, override)
}

// DeleteEnvironment soft-deletes environmentID after a visibility check.
func (r *Registry) DeleteEnvironment(accountID, environmentID string, override bool) error {
	if err := r.requireVisibility(accountID, environmentID, override); err != nil {
		return err
	}
	return r.store.SoftDeleteEnvironment(environmentID)
}

// GetEnvironmentView composes {entity, revision, current_deployment} for
// environmentID, honoring Invariant R2 unless override is set.
func (r *Registry) GetEnvironmentView(accountID, environmentID string, override bool) (*EnvironmentView, error) {
	if err := r.requireVisibility(accountID, environmentID, override); err != nil {
		return nil, err
	}
	env, err := r.store.GetEnvironment(environmentID)
	if err != nil {
		return nil, err
	}
	rev, err := r.store.GetEnvironmentRevision(environmentID, env.CurrentRevision)
	if err != nil {
		return nil, err
	}
	deployments, err := r.store.ListDeploymentsByEnvironment(environmentID)
	if err != nil {
		return nil, err
	}
	view := &EnvironmentView{Environment: env, Revision: rev}
	for _, d := range deployments {
		if d.Status == domain.DeploymentActive {
			view.CurrentDeployment = d
			break
		}
	}
	return view, nil
}

// ListVisibleToAccount returns every environment accountID can see,
// across every application it owns plus every non-deleted share granted
// to it — the round-trip law spec.md §8 names as "Visibility soundness".
func (r *Registry) ListVisibleToAccount(accountID string) ([]*domain.Environment, error) {
	apps, err := r.store.ListApplicationsByAccount(accountID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []*domain.Environment
	for _, app := range apps {
		envs, err := r.store.ListEnvironmentsByApplication(app.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range envs {
			if !seen[e.ID] {
				seen[e.ID] = true
				out = append(out, e)
			}
		}
	}
	shares, err := r.store.ListSharesByGrantee(accountID)
	if err != nil {
		return nil, err
	}
	for _, s := range shares {
		if s.DeletedAt != nil || seen[s.EnvironmentID] {
			continue
		}
		env, err := r.store.GetEnvironment(s.EnvironmentID)
		if err != nil {
			continue
		}
		seen[env.ID] = true
		out = append(out, env)
	}
	return out, nil
}

// ShareEnvironment grants granteeAccountID access to environmentID.
// The grantor must already be able to see the environment.
func (r *Registry) ShareEnvironment(grantorAccountID, environmentID, granteeAccountID string, canWrite bool) (*domain.EnvironmentShare, error) {
	if err := r.requireVisibility(grantorAccountID, environmentID, false); err != nil {
		return nil, err
	}
	share := &domain.EnvironmentShare{
		ID:               uuid.NewString(),
		EnvironmentID:    environmentID,
		GranteeAccountID: granteeAccountID,
		CanWrite:         canWrite,
		CreatedAt:        time.Now(),
	}
	if err := r.store.CreateEnvironmentShare(share); err != nil {
		return nil, err
	}
	return share, nil
}

// RevokeShare soft-deletes an EnvironmentShare, immediately removing the
// grantee's visibility (Invariant R2: visibility is recomputed from
// non-deleted shares only, no caching).
func (r *Registry) RevokeShare(shareID string) error {
	return r.store.SoftDeleteEnvironmentShare(shareID)
}

// CreateDeployment creates a pending Deployment pinning environmentID's
// current revision, the first step of an atomic deployment switch.
func (r *Registry) CreateDeployment(accountID, environmentID string, override bool) (*domain.Deployment, error) {
	if err := r.requireVisibility(accountID, environmentID, override); err != nil {
		return nil, err
	}
	env, err := r.store.GetEnvironment(environmentID)
	if err != nil {
		return nil, err
	}
	d := &domain.Deployment{
		ID:            uuid.NewString(),
		EnvironmentID: environmentID,
		RevisionID:    env.CurrentRevision,
		Status:        domain.DeploymentPending,
		CreatedAt:     time.Now(),
	}
	if err := r.store.CreateDeployment(d); err != nil {
		return nil, err
	}
	return d, nil
}

// ActivateDeployment performs the atomic deployment switch spec.md §4.6
// describes: it marks deploymentID Active and supersedes every other
// deployment previously Active in the same environment, so the Gateway
// and RPC fabric always see exactly one active deployment per
// environment (the "atomic deployment switch" spec.md §1 names as a
// headline registry responsibility).
func (r *Registry) ActivateDeployment(accountID, environmentID, deploymentID string, override bool) error {
	if err := r.requireVisibility(accountID, environmentID, override); err != nil {
		return err
	}
	deployments, err := r.store.ListDeploymentsByEnvironment(environmentID)
	if err != nil {
		return err
	}
	for _, d := range deployments {
		if d.ID != deploymentID && d.Status == domain.DeploymentActive {
			if err := r.store.UpdateDeploymentStatus(d.ID, domain.DeploymentSuperseded, d.ActivatedAt); err != nil {
				return err
			}
		}
	}
	now := time.Now()
	return r.store.UpdateDeploymentStatus(deploymentID, domain.DeploymentActive, &now)
}

// Close releases the underlying store's resources.
func (r *Registry) Close() error {
	return r.store.Close()
}
