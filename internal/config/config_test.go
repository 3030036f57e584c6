// ABOUTME: Tests for configuration loading.
// ABOUTME: Covers YAML parsing, env var expansion, duration parsing, and validation.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":9090"
database:
  path: /var/lib/arena/archive.db
matches:
  broadcast_interval: 250ms
  min_move_delay: 2s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/lib/arena/archive.db", cfg.Database.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Matches.BroadcastInterval)
	assert.Equal(t, 2*time.Second, cfg.Matches.MinMoveDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("ARENA_TEST_DB", "/tmp/arena-test.db")

	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: ${ARENA_TEST_DB}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/arena-test.db", cfg.Database.Path)
}

func TestLoadAppliesDurationDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: data/arena.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Matches.BroadcastInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Matches.MinMoveDelay)
}

func TestLoadFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [not: closed"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: data/arena.db
matches:
  broadcast_interval: soon
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broadcast_interval")
	})

	t.Run("missing http addr", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
database:
  path: data/arena.db
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http_addr")
	})

	t.Run("missing database path", func(t *testing.T) {
		// An unset env var expands to empty and fails validation.
		_, err := Load(writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: ${ARENA_UNSET_DB_PATH}
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.path")
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, time.Second, cfg.Matches.BroadcastInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Matches.MinMoveDelay)
}
