package registry

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAccounts        = []byte("accounts")
	bucketApplications    = []byte("applications")
	bucketAppRevisions    = []byte("application_revisions")
	bucketEnvironments    = []byte("environments")
	bucketEnvRevisions    = []byte("environment_revisions")
	bucketDeployments     = []byte("deployments")
	bucketEnvironmentShares = []byte("environment_shares")
)

// boltStore is the default Store implementation: one bbolt database,
// one bucket per entity type, JSON-encoded values — the same idiom
// pkg/storage.BoltStore uses for cluster state.
type boltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a registry database in dataDir.
func NewBoltStore(dataDir string) (Store, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "registry.db"), 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketAccounts, bucketApplications, bucketAppRevisions,
			bucketEnvironments, bucketEnvRevisions, bucketDeployments,
			bucketEnvironmentShares,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func putJSON(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func getJSON(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// --- Account ---

func (s *boltStore) CreateAccount(a *domain.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putJSON(tx, bucketAccounts, a.ID, a) })
}

func (s *boltStore) GetAccount(id string) (*domain.Account, error) {
	var a domain.Account
	err := s.db.View(func(tx *bolt.Tx) error { return getJSON(tx, bucketAccounts, id, &a) })
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Application ---

func (s *boltStore) CreateApplication(a *domain.Application) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putJSON(tx, bucketApplications, a.ID, a) })
}

func (s *boltStore) GetApplication(id string) (*domain.Application, error) {
	var a domain.Application
	err := s.db.View(func(tx *bolt.Tx) error { return getJSON(tx, bucketApplications, id, &a) })
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *boltStore) ListApplicationsByAccount(accountID string) ([]*domain.Application, error) {
	var out []*domain.Application
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketApplications).ForEach(func(_, v []byte) error {
			var a domain.Application
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.AccountID == accountID && a.DeletedAt == nil {
				out = append(out, &a)
			}
			return nil
		})
	})
	return out, err
}

// InsertApplicationRevision performs the bbolt-transaction compare-and-
// swap described in spec.md §4.6: the transaction already serializes
// concurrent writers, so detecting a race becomes re-reading
// current_revision inside the same Update closure.
func (s *boltStore) InsertApplicationRevision(rev *domain.ApplicationRevision, expectedCurrent int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var app domain.Application
		if err := getJSON(tx, bucketApplications, rev.ApplicationID, &app); err != nil {
			return err
		}
		if app.CurrentRevision != expectedCurrent {
			return &domain.ConcurrentModification{
				Entity: "application", ID: rev.ApplicationID,
				Expected: expectedCurrent, Actual: app.CurrentRevision,
			}
		}
		revKey := fmt.Sprintf("%s/%d", rev.ApplicationID, rev.RevisionID)
		if tx.Bucket(bucketAppRevisions).Get([]byte(revKey)) != nil {
			return &domain.ConcurrentModification{
				Entity: "application_revision", ID: revKey,
				Expected: rev.RevisionID, Actual: rev.RevisionID,
			}
		}
		if err := putJSON(tx, bucketAppRevisions, revKey, rev); err != nil {
			return err
		}
		app.CurrentRevision = rev.RevisionID
		app.Name = rev.Name
		return putJSON(tx, bucketApplications, app.ID, &app)
	})
}

func (s *boltStore) SoftDeleteApplication(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var app domain.Application
		if err := getJSON(tx, bucketApplications, id, &app); err != nil {
			return err
		}
		now := time.Now()
		app.DeletedAt = &now
		return putJSON(tx, bucketApplications, id, &app)
	})
}

// --- Environment ---

func (s *boltStore) CreateEnvironment(e *domain.Environment) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putJSON(tx, bucketEnvironments, e.ID, e) })
}

func (s *boltStore) GetEnvironment(id string) (*domain.Environment, error) {
	var e domain.Environment
	err := s.db.View(func(tx *bolt.Tx) error { return getJSON(tx, bucketEnvironments, id, &e) })
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *boltStore) ListEnvironmentsByApplication(applicationID string) ([]*domain.Environment, error) {
	var out []*domain.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironments).ForEach(func(_, v []byte) error {
			var e domain.Environment
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.ApplicationID == applicationID && e.DeletedAt == nil {
				out = append(out, &e)
			}
			return nil
		})
	})
	return out, err
}

func (s *boltStore) InsertEnvironmentRevision(rev *domain.EnvironmentRevision, expectedCurrent int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var env domain.Environment
		if err := getJSON(tx, bucketEnvironments, rev.EnvironmentID, &env); err != nil {
			return err
		}
		if env.CurrentRevision != expectedCurrent {
			return &domain.ConcurrentModification{
				Entity: "environment", ID: rev.EnvironmentID,
				Expected: expectedCurrent, Actual: env.CurrentRevision,
			}
		}
		revKey := fmt.Sprintf("%s/%d", rev.EnvironmentID, rev.RevisionID)
		if tx.Bucket(bucketEnvRevisions).Get([]byte(revKey)) != nil {
			return &domain.ConcurrentModification{
				Entity: "environment_revision", ID: revKey,
				Expected: rev.RevisionID, Actual: rev.RevisionID,
			}
		}
		if err := putJSON(tx, bucketEnvRevisions, revKey, rev); err != nil {
			return err
		}
		env.CurrentRevision = rev.RevisionID
		return putJSON(tx, bucketEnvironments, env.ID, &env)
	})
}

func (s *boltStore) GetEnvironmentRevision(environmentID string, revisionID int) (*domain.EnvironmentRevision, error) {
	var rev domain.EnvironmentRevision
	key := fmt.Sprintf("%s/%d", environmentID, revisionID)
	err := s.db.View(func(tx *bolt.Tx) error { return getJSON(tx, bucketEnvRevisions, key, &rev) })
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (s *boltStore) SoftDeleteEnvironment(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var env domain.Environment
		if err := getJSON(tx, bucketEnvironments, id, &env); err != nil {
			return err
		}
		now := time.Now()
		env.DeletedAt = &now
		return putJSON(tx, bucketEnvironments, id, &env)
	})
}

// --- Deployment ---

func (s *boltStore) CreateDeployment(d *domain.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putJSON(tx, bucketDeployments, d.ID, d) })
}

func (s *boltStore) GetDeployment(id string) (*domain.Deployment, error) {
	var d domain.Deployment
	err := s.db.View(func(tx *bolt.Tx) error { return getJSON(tx, bucketDeployments, id, &d) })
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *boltStore) ListDeploymentsByEnvironment(environmentID string) ([]*domain.Deployment, error) {
	var out []*domain.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).ForEach(func(_, v []byte) error {
			var d domain.Deployment
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if d.EnvironmentID == environmentID {
				out = append(out, &d)
			}
			return nil
		})
	})
	return out, err
}

func (s *boltStore) UpdateDeploymentStatus(id string, status domain.DeploymentStatus, activatedAt *time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var d domain.Deployment
		if err := getJSON(tx, bucketDeployments, id, &d); err != nil {
			return err
		}
		d.Status = status
		if activatedAt != nil {
			d.ActivatedAt = activatedAt
		}
		return putJSON(tx, bucketDeployments, id, &d)
	})
}

// --- EnvironmentShare ---

func (s *boltStore) CreateEnvironmentShare(share *domain.EnvironmentShare) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putJSON(tx, bucketEnvironmentShares, share.ID, share) })
}

func (s *boltStore) ListSharesByEnvironment(environmentID string) ([]*domain.EnvironmentShare, error) {
	var out []*domain.EnvironmentShare
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironmentShares).ForEach(func(_, v []byte) error {
			var sh domain.EnvironmentShare
			if err := json.Unmarshal(v, &sh); err != nil {
				return err
			}
			if sh.EnvironmentID == environmentID && sh.DeletedAt == nil {
				out = append(out, &sh)
			}
			return nil
		})
	})
	return out, err
}

func (s *boltStore) ListSharesByGrantee(accountID string) ([]*domain.EnvironmentShare, error) {
	var out []*domain.EnvironmentShare
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironmentShares).ForEach(func(_, v []byte) error {
			var sh domain.EnvironmentShare
			if err := json.Unmarshal(v, &sh); err != nil {
				return err
			}
			if sh.GranteeAccountID == accountID && sh.DeletedAt == nil {
				out = append(out, &sh)
			}
			return nil
		})
	})
	return out, err
}

func (s *boltStore) SoftDeleteEnvironmentShare(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var sh domain.EnvironmentShare
		if err := getJSON(tx, bucketEnvironmentShares, id, &sh); err != nil {
			return err
		}
		now := time.Now()
		sh.DeletedAt = &now
		return putJSON(tx, bucketEnvironmentShares, id, &sh)
	})
}

// Close closes the underlying database.
func (s *boltStore) Close() error {
	return s.db.Close()
}
