package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "destchoice.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "configs", cfg.Model.ConfigsDir)
	assert.Equal(t, 30, cfg.Model.SampleSize)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, 4, cfg.Model.Workers)
	assert.Equal(t, "TAZ", cfg.Skims.ZoneIDField)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 10.0, cfg.Server.RateLimit, 0.001)
	assert.Equal(t, 20, cfg.Server.Burst)
	assert.False(t, cfg.Trace.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/choices
model:
  sample_size: 50
  workers: 8
log:
  level: debug
  format: console
trace:
  enabled: true
  dir: out/trace
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/choices", cfg.Store.DatabaseURL)
	assert.Equal(t, 50, cfg.Model.SampleSize)
	assert.Equal(t, 8, cfg.Model.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, "out/trace", cfg.Trace.Dir)

	// Unset values still fall back to defaults.
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DESTCHOICE_MODEL_SEED", "7")
	t.Setenv("DESTCHOICE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Model.Seed)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(":\n  - not yaml"), 0o644))

	_, err := Load()
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
}
