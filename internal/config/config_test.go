package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cellardex/cellarid/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 5.0, cfg.Anthropic.RequestsPerSecond, 0.001)
	assert.Equal(t, 85, cfg.Engine.ConfidenceTarget)
	assert.Equal(t, 92, cfg.Engine.DeepGate)
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.FieldDelay())
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 60, cfg.Circuit.FailureWindowSec)
	assert.Equal(t, 30, cfg.Circuit.OpenDurationSec)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)

	require.Len(t, cfg.Engine.Tiers, 3)
	assert.Equal(t, model.TierFast, cfg.Engine.Tiers[0].Name)
	assert.Equal(t, model.TierDetailed, cfg.Engine.Tiers[1].Name)
	assert.Equal(t, model.TierDeep, cfg.Engine.Tiers[2].Name)
	for _, tier := range cfg.Engine.Tiers {
		assert.Equal(t, "anthropic", tier.Provider)
		assert.NotEmpty(t, tier.Model)
		assert.Greater(t, tier.Timeout, time.Duration(0))
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/cellarid
log:
  level: debug
  format: console
server:
  port: 9090
engine:
  confidence_target: 80
  deep_gate: 95
  tiers:
    - name: fast
      model: claude-haiku-4-5-20251001
      max_tokens: 512
      timeout: 10s
    - name: detailed
      model: claude-sonnet-4-5-20250929
      effort: medium
      max_tokens: 2048
      timeout: 20s
circuit:
  failure_threshold: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/cellarid", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 80, cfg.Engine.ConfidenceTarget)
	assert.Equal(t, 95, cfg.Engine.DeepGate)
	assert.Equal(t, 3, cfg.Circuit.FailureThreshold)

	// A two-tier ladder is legal; missing providers take the default.
	require.Len(t, cfg.Engine.Tiers, 2)
	assert.Equal(t, "anthropic", cfg.Engine.Tiers[0].Provider)
	assert.Equal(t, int64(512), cfg.Engine.Tiers[0].MaxTokens)
	assert.Equal(t, 10*time.Second, cfg.Engine.Tiers[0].Timeout)
	assert.Equal(t, "medium", cfg.Engine.Tiers[1].Effort)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CELLARID_ANTHROPIC_KEY", "sk-test-123")
	t.Setenv("CELLARID_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.Anthropic.Key)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	require.Error(t, err)
}
