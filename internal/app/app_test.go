package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mj-status/forecaster/internal/artifact"
	"github.com/mj-status/forecaster/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.SQLite.Path = filepath.Join(dir, "records.db")
	cfg.Storage.Root = filepath.Join(dir, "artifacts")
	return cfg
}

func TestNewWiresLocalStore(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "local", a.Store.Backend())
	assert.Nil(t, a.Cache)
	assert.Contains(t, a.Pingers(), "sqlite")
	assert.NotContains(t, a.Pingers(), "redis")
	require.NoError(t, a.DB.Ping(context.Background()))
}

func TestNewSkipsUnreachableCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 1

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Cache)
	_, cached := a.Store.(*artifact.CachedStore)
	assert.False(t, cached)
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	_, err := NewStore(context.Background(), config.StorageConfig{Backend: "ftp"})
	require.Error(t, err)
}
