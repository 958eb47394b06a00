package fsoverlay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/fabrik/pkg/domain"
)

// DefaultBasePath is the base directory for blobs and materialized
// worker overlays.
const DefaultBasePath = "/var/lib/fabrik/fsoverlay"

// Store is a content-addressed blob store that materializes a worker's
// InitialFilesystem manifest into a read-only directory tree.
type Store struct {
	basePath string
}

// NewStore creates a Store rooted at basePath, creating it if absent.
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if err := os.MkdirAll(filepath.Join(basePath, "blobs"), 0o755); err != nil {
		return nil, fmt.Errorf("create blobs directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(basePath, "overlays"), 0o755); err != nil {
		return nil, fmt.Errorf("create overlays directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.basePath, "blobs", hash)
}

// Put writes content to the blob store under its sha256 hash, a no-op
// if the blob is already present. It returns the hex-encoded hash.
func (s *Store) Put(content []byte) (string, error) {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	path := s.blobPath(hash)

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o444); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize blob: %w", err)
	}
	return hash, nil
}

// Has reports whether a blob with the given hash is already stored.
func (s *Store) Has(hash string) bool {
	_, err := os.Stat(s.blobPath(hash))
	return err == nil
}

// overlayPath returns the materialized overlay directory for a worker.
func (s *Store) overlayPath(worker domain.WorkerId) string {
	return filepath.Join(s.basePath, "overlays", worker.ComponentId, worker.WorkerName)
}

// OverlayRoot exposes a worker's materialized overlay directory so the
// Gateway's FileServer binding can resolve a response-rib file_path
// against it (spec.md §4.4 "the core streams the named file via the
// component's filesystem").
func (s *Store) OverlayRoot(worker domain.WorkerId) string {
	return s.overlayPath(worker)
}

// Materialize builds a read-only overlay directory for worker from
// manifest, hardlinking each entry's blob into place after verifying
// its stored size matches. It returns the overlay's root path.
func (s *Store) Materialize(worker domain.WorkerId, manifest []domain.FileManifestEntry) (string, error) {
	root := s.overlayPath(worker)
	if err := os.RemoveAll(root); err != nil {
		return "", fmt.Errorf("clear stale overlay: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create overlay root: %w", err)
	}

	for _, entry := range manifest {
		blob := s.blobPath(entry.ContentHash)
		info, err := os.Stat(blob)
		if err != nil {
			return "", fmt.Errorf("missing blob %s for %s: %w", entry.ContentHash, entry.Path, err)
		}
		if info.Size() != entry.SizeBytes {
			return "", fmt.Errorf("blob %s size mismatch for %s: manifest says %d, blob is %d",
				entry.ContentHash, entry.Path, entry.SizeBytes, info.Size())
		}

		dest := filepath.Join(root, filepath.Clean("/"+entry.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", fmt.Errorf("create parent dirs for %s: %w", entry.Path, err)
		}
		if err := linkOrCopy(blob, dest, os.FileMode(entry.Permissions)); err != nil {
			return "", fmt.Errorf("materialize %s: %w", entry.Path, err)
		}
	}
	return root, nil
}

// Remove deletes a worker's materialized overlay directory.
func (s *Store) Remove(worker domain.WorkerId) error {
	return os.RemoveAll(s.overlayPath(worker))
}

// linkOrCopy hardlinks src to dest, falling back to a full copy if the
// blob store and overlay directory are on different filesystems.
func linkOrCopy(src, dest string, perm os.FileMode) error {
	if err := os.Link(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
