package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
app:
  default_timeout: 7s
  log_level: debug
  pretty_logs: true

database:
  enabled: true
  host: db
  user: ${GUESTVFS_TEST_DB_USER}
  name: guestvfs

vfs:
  max_open_fds: 128
  persist_mountpoint: /persist
  sync_interval: 1m
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	t.Setenv("GUESTVFS_TEST_DB_USER", "expanded")
	t.Setenv("APP_PORT", "9100")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.App.Port)
	assert.Equal(t, 7*time.Second, cfg.App.DefaultTimeout)
	assert.True(t, cfg.App.PrettyLogs)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "expanded", cfg.Database.User)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, 5432, cfg.Database.Port)

	assert.Equal(t, 128, cfg.VFS.MaxOpenFDs)
	assert.Equal(t, 4096, cfg.VFS.NameTableSize)
	assert.False(t, cfg.VFS.EnforcePermissions)
	assert.Equal(t, "/persist", cfg.VFS.PersistMountpoint)
	assert.Equal(t, time.Minute, cfg.VFS.SyncInterval)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "does not exist")

	_, err = Load(writeConfig(t, "app: [unclosed"))
	assert.ErrorContains(t, err, "cannot parse config")

	assert.Panics(t, func() { MustLoad("") })
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "guestvfs",
		Password: "p@ss",
		Name:     "snapshots",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://guestvfs:p%40ss@db:5433/snapshots?sslmode=disable", c.DSN())
}
