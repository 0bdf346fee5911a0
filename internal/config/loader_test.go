package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEngineDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 8080
database:
  host: localhost
  name: netfleet
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 15*time.Second, cfg.Engine.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.Engine.OpsTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Engine.OverallTimeout)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Engine.RetryBaseDelay)
	assert.True(t, cfg.Engine.RetryExponential)
	assert.Equal(t, 90*time.Second, cfg.Engine.OTPCacheTTL)
}

func TestLoadOperationOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
engine:
  max_concurrency: 10
  ops_timeout: 30s
  operations:
    backup:
      max_concurrency: 4
      ops_timeout: 120s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	backup := cfg.Engine.ForOperation("backup")
	assert.Equal(t, 4, backup.MaxConcurrency)
	assert.Equal(t, 120*time.Second, backup.OpsTimeout)
	// Fields the override does not name fall back to the engine defaults.
	assert.Equal(t, 3, backup.MaxAttempts)

	collect := cfg.Engine.ForOperation("collect")
	assert.Equal(t, 10, collect.MaxConcurrency)
	assert.Equal(t, 30*time.Second, collect.OpsTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}
