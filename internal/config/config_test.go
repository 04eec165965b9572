package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesYamlThenEnvThenDefaults(t *testing.T) {
	os.Clearenv()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue:
  driver: file
  default: emails
  retry_after: 30
database:
  adapter: mysql
  name: chronoqueue
`), 0o644))

	t.Setenv("CHRONQ_QUEUE_DRIVER", "database") // env overrides yaml

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "database", cfg.Queue.Driver, "env must win over yaml")
	assert.Equal(t, "emails", cfg.Queue.DefaultQueue)
	assert.Equal(t, 30*time.Second, cfg.Queue.RetryAfterDuration())
	assert.Equal(t, 3, cfg.Queue.MaxAttempts, "unset max_attempts takes the built-in default")
	assert.Equal(t, "mysql", cfg.Database.Adapter)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "database", cfg.Queue.Driver)
	assert.Equal(t, "default", cfg.Queue.DefaultQueue)
	assert.Equal(t, "sqlite", cfg.Database.Adapter)
	assert.Equal(t, 90*time.Second, cfg.Queue.RetryAfterDuration())
	assert.Equal(t, time.Duration(0), cfg.Queue.BackoffDuration(), "zero backoff disables delay")
}

func TestLoadEmptyPathSkipsFileRead(t *testing.T) {
	os.Clearenv()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "database", cfg.Queue.Driver)
}

func TestArchivalDisabledUntilBucketConfigured(t *testing.T) {
	os.Clearenv()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Archival.Enabled())

	t.Setenv("CHRONQ_ARCHIVAL_BUCKET", "chronoqueue-failed-jobs")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Archival.Enabled())
	assert.Equal(t, "chronoqueue-failed-jobs", cfg.Archival.Bucket)
}
