package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Server.TCPPort)
	assert.Equal(t, "7002", cfg.Server.HTTPPort)
	assert.False(t, cfg.Server.DisableTLS)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, uint64(10000), cfg.Store.MaxRecords)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RECORDSTORE_STORAGE_BACKEND", "sqlite")
	t.Setenv("RECORDSTORE_STORE_MAX_RECORDS", "5")
	t.Setenv("RECORDSTORE_SERVER_DISABLE_TLS", "true")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, uint64(5), cfg.Store.MaxRecords)
	assert.True(t, cfg.Server.DisableTLS)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recordstore.yaml")
	content := "server:\n  http_port: \"9090\"\nlog:\n  format: json\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.HTTPPort)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "7001", cfg.Server.TCPPort)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("RECORDSTORE_STORAGE_BACKEND", "postgres")
	_, err := Load(New(), "")
	assert.Error(t, err)

	_, err = Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
