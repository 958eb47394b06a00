package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabrik.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  listen_addr: \"0.0.0.0:9999\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", cfg.Gateway.ListenAddr)
	require.Equal(t, "./fabrik-data/overlay", cfg.Gateway.OverlayDir)
}

func TestLoadAppliesEnvOverOptions(t *testing.T) {
	t.Setenv("GATEWAY_LISTEN_ADDR", "127.0.0.1:1234")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:1234", cfg.Gateway.ListenAddr)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/fabrik.yaml")
	require.NoError(t, err)
	require.Equal(t, "node-1", cfg.Cluster.NodeID)
}
