package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "local", cfg.Env)
	require.Equal(t, "http://localhost:9000", cfg.Client.BaseURL)
	require.Equal(t, "default", cfg.Client.Namespace)
	require.Equal(t, 30*time.Second, cfg.Client.RequestTimeout)
	require.Zero(t, cfg.Client.RefreshTimeout)
	require.Equal(t, StoreSQLite, cfg.Store.Driver)
	require.Equal(t, 5*time.Minute, cfg.IdP.ChallengeWindow)
	require.Equal(t, 120*time.Hour, cfg.IdP.RefreshTTL)
	require.Equal(t, 60, cfg.IdP.LoginRate)
	require.Equal(t, EventsGoChannel, cfg.Events.Driver)
}

func TestLoadFileWithEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: prod
client:
  base_url: https://api.example.com
  namespace: dashboard
  refresh_timeout: 10s
store:
  driver: memory
idp:
  access_ttl: 1m
`), 0o600))

	t.Setenv("NAMESPACE", "override")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "https://api.example.com", cfg.Client.BaseURL)
	require.Equal(t, "override", cfg.Client.Namespace)
	require.Equal(t, 10*time.Second, cfg.Client.RefreshTimeout)
	require.Equal(t, StoreMemory, cfg.Store.Driver)
	require.Equal(t, time.Minute, cfg.IdP.AccessTTL)
}

func TestLoadRejectsInvalidDrivers(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	t.Setenv("STORE_DRIVER", "etcd")
	_, err := Load("")
	require.ErrorContains(t, err, "unknown store driver")

	t.Setenv("STORE_DRIVER", StoreRedis)
	t.Setenv("REDIS_URL", "")
	_, err = Load("")
	require.ErrorContains(t, err, "requires redis_url")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
