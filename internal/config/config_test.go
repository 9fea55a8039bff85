package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Timeouts, cfg.Timeouts)
	assert.Equal(t, Default().Bridge.Port, cfg.Bridge.Port)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[timeouts]
fast_ms = 2000

[bridge]
port = 9001
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Timeouts.FastMs)
	assert.Equal(t, 9001, cfg.Bridge.Port)
	// Untouched fields keep their defaults.
	assert.Equal(t, Default().Timeouts.SlowMs, cfg.Timeouts.SlowMs)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[bridge]\nport = 9001\n"), 0o644))

	t.Setenv("MACRORUN_BRIDGE_PORT", "9500")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9500, cfg.Bridge.Port)
}

func TestValidate_RejectsBadEncryptionMode(t *testing.T) {
	cfg := Default()
	cfg.Encryption.DefaultMode = "ROT13"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encryption.default_mode")
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Port = 70000
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge.port")
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "trace"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestRetryDelay_MatchesConfiguredMilliseconds(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(cfg.Timeouts.RetryDelayMs), cfg.RetryDelay().Milliseconds())
}

func TestGlobal_DefaultsWhenUnset(t *testing.T) {
	SetGlobal(Default())
	assert.NotNil(t, Global())
}
