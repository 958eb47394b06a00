package fsoverlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/stretchr/testify/require"
)

func TestPutIsContentAddressedAndIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	hash1, err := store.Put([]byte("hello world"))
	require.NoError(t, err)
	hash2, err := store.Put([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, hash1, hash2)
	require.True(t, store.Has(hash1))
}

func TestMaterializeBuildsOverlayTree(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	hash, err := store.Put([]byte("package contents"))
	require.NoError(t, err)

	worker := domain.WorkerId{ComponentId: "comp-a", WorkerName: "w1"}
	manifest := []domain.FileManifestEntry{
		{Path: "/config/app.json", Permissions: 0o444, ContentHash: hash, SizeBytes: int64(len("package contents"))},
	}

	root, err := store.Materialize(worker, manifest)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "config", "app.json"))
	require.NoError(t, err)
	require.Equal(t, "package contents", string(data))
}

func TestMaterializeRejectsSizeMismatch(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	hash, err := store.Put([]byte("short"))
	require.NoError(t, err)

	worker := domain.WorkerId{ComponentId: "comp-a", WorkerName: "w2"}
	manifest := []domain.FileManifestEntry{
		{Path: "/file.txt", Permissions: 0o444, ContentHash: hash, SizeBytes: 999},
	}

	_, err = store.Materialize(worker, manifest)
	require.Error(t, err)
}

func TestRemoveDeletesOverlay(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	hash, err := store.Put([]byte("x"))
	require.NoError(t, err)
	worker := domain.WorkerId{ComponentId: "comp-a", WorkerName: "w3"}
	root, err := store.Materialize(worker, []domain.FileManifestEntry{
		{Path: "/x", Permissions: 0o444, ContentHash: hash, SizeBytes: 1},
	})
	require.NoError(t, err)

	require.NoError(t, store.Remove(worker))
	_, err = os.Stat(root)
	require.True(t, os.IsNotExist(err))
}
