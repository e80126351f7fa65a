package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api/v1", cfg.Target.BaseURL)
	assert.Equal(t, "http://localhost:3000", cfg.Target.TrustedOrigin)
	assert.Equal(t, 30*time.Second, cfg.Target.Timeout)
	assert.Equal(t, 4, cfg.Runner.Concurrency)
	assert.Empty(t, cfg.Runner.KeyFilter)
	assert.Zero(t, cfg.Runner.ResultLimit)
	assert.False(t, cfg.Runner.StrictExit)
	assert.False(t, cfg.Runner.StrictExploratory)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "stdout", cfg.Log.Output)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SAGA_TARGET_BASE_URL", "https://staging.example.com/api/v1")
	t.Setenv("SAGA_RUNNER_CONCURRENCY", "8")
	t.Setenv("SAGA_RUNNER_KEY_FILTER", "booking")
	t.Setenv("SAGA_RUNNER_STRICT_EXIT", "true")
	t.Setenv("SAGA_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.com/api/v1", cfg.Target.BaseURL)
	assert.Equal(t, 8, cfg.Runner.Concurrency)
	assert.Equal(t, "booking", cfg.Runner.KeyFilter)
	assert.True(t, cfg.Runner.StrictExit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("relative base url", func(t *testing.T) {
		t.Setenv("SAGA_TARGET_BASE_URL", "not-a-url")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative concurrency", func(t *testing.T) {
		t.Setenv("SAGA_RUNNER_CONCURRENCY", "-2")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative result limit", func(t *testing.T) {
		t.Setenv("SAGA_RUNNER_RESULT_LIMIT", "-1")
		_, err := Load()
		assert.Error(t, err)
	})
}
