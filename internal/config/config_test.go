package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse([]byte("database:\n  path: " + filepath.Join(dir, "db", "hooks.db") + "\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, QueueSQLite, cfg.Queue.Backend)
	assert.Equal(t, 7*time.Second, cfg.DeliveryTimeout())
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Nil(t, cfg.Backoff())
	assert.Equal(t, 31*24*time.Hour, cfg.AuditRetention())

	_, err = os.Stat(filepath.Join(dir, "db"))
	assert.NoError(t, err, "database directory is created")
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("HOOKS_API_KEY", "k-123")
	raw := `
server:
  api_key: ${HOOKS_API_KEY}
database:
  path: ` + filepath.Join(t.TempDir(), "hooks.db") + `
queue:
  backend: redis
delivery:
  backoff_seconds: [1, 2]
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "k-123", cfg.Server.APIKey)
	assert.Equal(t, QueueRedis, cfg.Queue.Backend)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.Backoff())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
