package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("BASE_URL", "")
	t.Setenv("REQUEST_TIMEOUT", "")
	t.Setenv("STORAGE_BACKEND", "")

	c := config.New()
	require.Equal(t, "http://localhost:8080", c.GetBaseURL())
	require.Equal(t, 30*time.Second, c.GetRequestTimeout())
	require.Equal(t, 5*time.Minute, c.GetRefreshLead())
	require.Equal(t, time.Minute, c.GetRefreshCheckInterval())
	require.Equal(t, "onflix_session", c.GetStorageKey())
	require.Equal(t, config.StorageFile, c.GetStorageBackend())
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.yaml")
	yamlDoc := `
base_url: https://api.onflix.test/
session:
  request_timeout: 10s
  refresh_lead: 2m
storage:
  backend: redis
  redis_db: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv("BASE_URL", "")
	t.Setenv("REQUEST_TIMEOUT", "")
	t.Setenv("REFRESH_LEAD", "90s")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("REDIS_DB", "")

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.onflix.test", c.GetBaseURL())
	require.Equal(t, 10*time.Second, c.GetRequestTimeout())
	require.Equal(t, 90*time.Second, c.GetRefreshLead())
	require.Equal(t, config.StorageRedis, c.GetStorageBackend())
	require.Equal(t, 3, c.GetRedisDB())
}

func TestLoadMissingFile(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	t.Setenv("STORAGE_BACKEND", "floppy")

	c := config.New()
	require.Equal(t, 30*time.Second, c.GetRequestTimeout())
	require.Equal(t, config.StorageFile, c.GetStorageBackend())
}
