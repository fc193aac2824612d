package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "temporal:7233", cfg.Temporal.Address)
	assert.Equal(t, "default", cfg.Temporal.Namespace)
	assert.Equal(t, "iama-main-queue", cfg.Temporal.TaskQueue)
	assert.Equal(t, 10, cfg.Worker.MaxConcurrentActivities)
	assert.Equal(t, 20, cfg.Worker.MaxConcurrentWorkflowTasks)
	require.NoError(t, cfg.Validate())
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing temporal address", func(c *Config) { c.Temporal.Address = "" }},
		{"missing task queue", func(c *Config) { c.Temporal.TaskQueue = "" }},
		{"missing database url", func(c *Config) { c.Database.URL = "" }},
		{"missing gateway base url", func(c *Config) { c.Gateway.BaseURL = "" }},
		{"zero activity concurrency", func(c *Config) { c.Worker.MaxConcurrentActivities = 0 }},
		{"zero workflow concurrency", func(c *Config) { c.Worker.MaxConcurrentWorkflowTasks = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "temporal.staging:7233")
	t.Setenv("TEMPORAL_NAMESPACE", "iama-staging")
	t.Setenv("TEMPORAL_TASK_QUEUE", "iama-staging-queue")
	t.Setenv("DATABASE_URL", "postgres://test@localhost:5432/iama_test")
	t.Setenv("LITELLM_API_BASE", "http://gateway:4000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := NewLoader(nil).Load("")
	require.NoError(t, err)

	assert.Equal(t, "temporal.staging:7233", cfg.Temporal.Address)
	assert.Equal(t, "iama-staging", cfg.Temporal.Namespace)
	assert.Equal(t, "iama-staging-queue", cfg.Temporal.TaskQueue)
	assert.Equal(t, "postgres://test@localhost:5432/iama_test", cfg.Database.URL)
	assert.Equal(t, "http://gateway:4000", cfg.Gateway.BaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFromFile_And_Merge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iama.yaml")
	content := []byte(`
temporal:
  task_queue: overlay-queue
gateway:
  request_timeout: 10m
worker:
  max_concurrent_activities: 4
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	overlay, err := LoadFromFile(path)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Merge(overlay)

	assert.Equal(t, "overlay-queue", cfg.Temporal.TaskQueue)
	assert.Equal(t, 10*time.Minute, cfg.Gateway.RequestTimeout)
	assert.Equal(t, 4, cfg.Worker.MaxConcurrentActivities)
	// Untouched fields keep defaults.
	assert.Equal(t, "temporal:7233", cfg.Temporal.Address)
	assert.Equal(t, 20, cfg.Worker.MaxConcurrentWorkflowTasks)
}

func TestSlogLevel(t *testing.T) {
	cfg := DefaultConfig()
	for in, want := range map[string]string{
		"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR", "bogus": "INFO",
	} {
		cfg.LogLevel = in
		assert.Equal(t, want, cfg.SlogLevel().String(), "level %q", in)
	}
}
