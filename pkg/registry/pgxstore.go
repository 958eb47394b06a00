package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxStore is the PostgreSQL-backed Store implementation, for
// deployments that want real `UPDATE ... RETURNING`-based compare-and-
// swap instead of boltStore's transaction-scoped CAS. Schema is applied
// out of band via Migrate before this is constructed.
type pgxStore struct {
	pool *pgxpool.Pool
}

// NewPgxStore connects to the PostgreSQL database at dsn. Callers are
// expected to have already run Migrate(dsn) to bring the schema current.
func NewPgxStore(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &pgxStore{pool: pool}, nil
}

func (s *pgxStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *pgxStore) CreateAccount(a *domain.Account) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO accounts (id, name, email, created_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Name, a.Email, a.CreatedAt)
	return err
}

func (s *pgxStore) GetAccount(id string) (*domain.Account, error) {
	var a domain.Account
	err := s.pool.QueryRow(context.Background(),
		`SELECT id, name, email, created_at FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Email, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *pgxStore) CreateApplication(a *domain.Application) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO applications (id, account_id, name, current_revision, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.AccountID, a.Name, a.CurrentRevision, a.CreatedAt)
	return err
}

func (s *pgxStore) GetApplication(id string) (*domain.Application, error) {
	var a domain.Application
	err := s.pool.QueryRow(context.Background(),
		`SELECT id, account_id, name, current_revision, created_at, deleted_at
		 FROM applications WHERE id = $1`, id,
	).Scan(&a.ID, &a.AccountID, &a.Name, &a.CurrentRevision, &a.CreatedAt, &a.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *pgxStore) ListApplicationsByAccount(accountID string) ([]*domain.Application, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, account_id, name, current_revision, created_at, deleted_at
		 FROM applications WHERE account_id = $1 AND deleted_at IS NULL`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Application
	for rows.Next() {
		var a domain.Application
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Name, &a.CurrentRevision, &a.CreatedAt, &a.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// InsertApplicationRevision uses a real RETURNING-based CAS: the UPDATE
// only touches the row if current_revision still equals expectedCurrent;
// zero rows affected means a concurrent writer already moved it.
func (s *pgxStore) InsertApplicationRevision(rev *domain.ApplicationRevision, expectedCurrent int) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO application_revisions (application_id, revision_id, name, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5)`,
		rev.ApplicationID, rev.RevisionID, rev.Name, rev.CreatedAt, rev.CreatedBy); err != nil {
		return fmt.Errorf("insert application revision: %w", err)
	}

	var actual int
	err = tx.QueryRow(ctx,
		`UPDATE applications SET current_revision = $1, name = $2
		 WHERE id = $3 AND current_revision = $4
		 RETURNING current_revision`,
		rev.RevisionID, rev.Name, rev.ApplicationID, expectedCurrent,
	).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		var got int
		if qerr := tx.QueryRow(ctx, `SELECT current_revision FROM applications WHERE id = $1`, rev.ApplicationID).Scan(&got); qerr == nil {
			return &domain.ConcurrentModification{Entity: "application", ID: rev.ApplicationID, Expected: expectedCurrent, Actual: got}
		}
		return &domain.ConcurrentModification{Entity: "application", ID: rev.ApplicationID, Expected: expectedCurrent, Actual: -1}
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgxStore) SoftDeleteApplication(id string) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE applications SET deleted_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *pgxStore) CreateEnvironment(e *domain.Environment) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO environments (id, application_id, name, current_revision, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ApplicationID, e.Name, e.CurrentRevision, e.CreatedAt)
	return err
}

func (s *pgxStore) GetEnvironment(id string) (*domain.Environment, error) {
	var e domain.Environment
	err := s.pool.QueryRow(context.Background(),
		`SELECT id, application_id, name, current_revision, created_at, deleted_at
		 FROM environments WHERE id = $1`, id,
	).Scan(&e.ID, &e.ApplicationID, &e.Name, &e.CurrentRevision, &e.CreatedAt, &e.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *pgxStore) ListEnvironmentsByApplication(applicationID string) ([]*domain.Environment, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, application_id, name, current_revision, created_at, deleted_at
		 FROM environments WHERE application_id = $1 AND deleted_at IS NULL`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Environment
	for rows.Next() {
		var e domain.Environment
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.Name, &e.CurrentRevision, &e.CreatedAt, &e.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *pgxStore) InsertEnvironmentRevision(rev *domain.EnvironmentRevision, expectedCurrent int) error {
	ctx := context.Background()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	components, err := json.Marshal(rev.Components)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO environment_revisions (environment_id, revision_id, components, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5)`,
		rev.EnvironmentID, rev.RevisionID, components, rev.CreatedAt, rev.CreatedBy); err != nil {
		return fmt.Errorf("insert environment revision: %w", err)
	}

	var actual int
	err = tx.QueryRow(ctx,
		`UPDATE environments SET current_revision = $1
		 WHERE id = $2 AND current_revision = $3
		 RETURNING current_revision`,
		rev.RevisionID, rev.EnvironmentID, expectedCurrent,
	).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		var got int
		if qerr := tx.QueryRow(ctx, `SELECT current_revision FROM environments WHERE id = $1`, rev.EnvironmentID).Scan(&got); qerr == nil {
			return &domain.ConcurrentModification{Entity: "environment", ID: rev.EnvironmentID, Expected: expectedCurrent, Actual: got}
		}
		return &domain.ConcurrentModification{Entity: "environment", ID: rev.EnvironmentID, Expected: expectedCurrent, Actual: -1}
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgxStore) GetEnvironmentRevision(environmentID string, revisionID int) (*domain.EnvironmentRevision, error) {
	var rev domain.EnvironmentRevision
	var raw []byte
	err := s.pool.QueryRow(context.Background(),
		`SELECT environment_id, revision_id, components, created_at, created_by
		 FROM environment_revisions WHERE environment_id = $1 AND revision_id = $2`,
		environmentID, revisionID,
	).Scan(&rev.EnvironmentID, &rev.RevisionID, &raw, &rev.CreatedAt, &rev.CreatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rev.Components); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (s *pgxStore) SoftDeleteEnvironment(id string) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE environments SET deleted_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *pgxStore) CreateDeployment(d *domain.Deployment) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO deployments (id, environment_id, revision_id, status, activated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.EnvironmentID, d.RevisionID, d.Status, d.ActivatedAt, d.CreatedAt)
	return err
}

func (s *pgxStore) GetDeployment(id string) (*domain.Deployment, error) {
	var d domain.Deployment
	err := s.pool.QueryRow(context.Background(),
		`SELECT id, environment_id, revision_id, status, activated_at, created_at
		 FROM deployments WHERE id = $1`, id,
	).Scan(&d.ID, &d.EnvironmentID, &d.RevisionID, &d.Status, &d.ActivatedAt, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *pgxStore) ListDeploymentsByEnvironment(environmentID string) ([]*domain.Deployment, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, environment_id, revision_id, status, activated_at, created_at
		 FROM deployments WHERE environment_id = $1 ORDER BY created_at`, environmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Deployment
	for rows.Next() {
		var d domain.Deployment
		if err := rows.Scan(&d.ID, &d.EnvironmentID, &d.RevisionID, &d.Status, &d.ActivatedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *pgxStore) UpdateDeploymentStatus(id string, status domain.DeploymentStatus, activatedAt *time.Time) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE deployments SET status = $1, activated_at = COALESCE($2, activated_at) WHERE id = $3`,
		status, activatedAt, id)
	return err
}

func (s *pgxStore) CreateEnvironmentShare(share *domain.EnvironmentShare) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO environment_shares (id, environment_id, grantee_account_id, can_write, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		share.ID, share.EnvironmentID, share.GranteeAccountID, share.CanWrite, share.CreatedAt)
	return err
}

func (s *pgxStore) ListSharesByEnvironment(environmentID string) ([]*domain.EnvironmentShare, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, environment_id, grantee_account_id, can_write, created_at, deleted_at
		 FROM environment_shares WHERE environment_id = $1 AND deleted_at IS NULL`, environmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EnvironmentShare
	for rows.Next() {
		var sh domain.EnvironmentShare
		if err := rows.Scan(&sh.ID, &sh.EnvironmentID, &sh.GranteeAccountID, &sh.CanWrite, &sh.CreatedAt, &sh.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, &sh)
	}
	return out, rows.Err()
}

func (s *pgxStore) ListSharesByGrantee(accountID string) ([]*domain.EnvironmentShare, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, environment_id, grantee_account_id, can_write, created_at, deleted_at
		 FROM environment_shares WHERE grantee_account_id = $1 AND deleted_at IS NULL`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EnvironmentShare
	for rows.Next() {
		var sh domain.EnvironmentShare
		if err := rows.Scan(&sh.ID, &sh.EnvironmentID, &sh.GranteeAccountID, &sh.CanWrite, &sh.CreatedAt, &sh.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, &sh)
	}
	return out, rows.Err()
}

func (s *pgxStore) SoftDeleteEnvironmentShare(id string) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE environment_shares SET deleted_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}
