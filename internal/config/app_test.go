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
	path := filepath.Join(t.TempDir(), "quantfuse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100_000.0, cfg.Pipeline.InitialCapital)
	assert.Equal(t, 4, cfg.WalkForward.Windows)
	assert.Equal(t, 20, cfg.Strategies.Crossover.Fast)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, ":9187", cfg.Telemetry.ListenAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  initial_capital: 250000
strategies:
  crossover:
    fast: 10
    slow: 40
redis:
  addr: localhost:6379
logging:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250_000.0, cfg.Pipeline.InitialCapital)
	assert.Equal(t, 10, cfg.Strategies.Crossover.Fast)
	assert.Equal(t, 40, cfg.Strategies.Crossover.Slow)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)

	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.WalkForward.Windows)
	assert.Equal(t, 0.7, cfg.WalkForward.TrainRatio)
	assert.Equal(t, 8, cfg.Postgres.MaxOpenConns)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "pipeline: [not a map"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "strategies:\n  crossover:\n    fast: 50\n    slow: 20\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "strategies.crossover")
	})
}

func TestApp_Validate_SectionErrors(t *testing.T) {
	cfg := Default()
	cfg.Postgres.DSN = "postgres://localhost/quantfuse"
	cfg.Postgres.MaxOpenConns = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.ListenAddr = ""
	require.Error(t, cfg.Validate())
}
