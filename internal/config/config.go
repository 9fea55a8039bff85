// config.go — layered configuration for macrorun: built-in defaults, then
// ~/.macrorun/config.toml, then MACRORUN_* environment variables, then CLI
// flags bound in by the caller. Grounded on the teacher pack's
// jeranaias-rigrun/internal/config/config.go (nested toml-tagged structs,
// sync.Once-guarded global, env overrides) but driven through viper instead
// of a hand-rolled loader, since viper is already the pack's config binder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete macrorun runtime configuration.
type Config struct {
	Timeouts   TimeoutsConfig   `toml:"timeouts" json:"timeouts" mapstructure:"timeouts"`
	State      StateConfig      `toml:"state" json:"state" mapstructure:"state"`
	Encryption EncryptionConfig `toml:"encryption" json:"encryption" mapstructure:"encryption"`
	Bridge     BridgeConfig     `toml:"bridge" json:"bridge" mapstructure:"bridge"`
	Log        LogConfig        `toml:"log" json:"log" mapstructure:"log"`
}

// TimeoutsConfig holds timeout tuning. TimeoutTagSeconds and RetryDelayMs
// reach the retry loop as its defaults through engine.Configure; no !TIMEOUT*
// system variable is seeded from here, and FastMs/SlowMs/BlockingPollMs are
// not read outside this package.
type TimeoutsConfig struct {
	FastMs            int     `toml:"fast_ms" json:"fast_ms" mapstructure:"fast_ms"`
	SlowMs            int     `toml:"slow_ms" json:"slow_ms" mapstructure:"slow_ms"`
	BlockingPollMs    int     `toml:"blocking_poll_ms" json:"blocking_poll_ms" mapstructure:"blocking_poll_ms"`
	TimeoutTagSeconds float64 `toml:"timeout_tag_seconds" json:"timeout_tag_seconds" mapstructure:"timeout_tag_seconds"`
	RetryDelayMs      int     `toml:"retry_delay_ms" json:"retry_delay_ms" mapstructure:"retry_delay_ms"`
}

// StateConfig holds settings for the run's in-memory bookkeeping. Its fields
// are not read outside this package; the snapshot ring size used by the CLI
// comes from its --snapshots flag (default state.DefaultMaxSnapshots).
type StateConfig struct {
	SnapshotRingSize int    `toml:"snapshot_ring_size" json:"snapshot_ring_size" mapstructure:"snapshot_ring_size"`
	StopwatchCSVDir  string `toml:"stopwatch_csv_dir" json:"stopwatch_csv_dir" mapstructure:"stopwatch_csv_dir"`
}

// EncryptionConfig carries defaults for !ENCRYPTION/!PASSWORD handling
// (internal/crypto), not secrets themselves.
type EncryptionConfig struct {
	DefaultMode string `toml:"default_mode" json:"default_mode" mapstructure:"default_mode"`
}

// BridgeConfig points the engine at the local browser-control daemon.
type BridgeConfig struct {
	Port       int    `toml:"port" json:"port" mapstructure:"port"`
	WaitForMs  int    `toml:"wait_for_ms" json:"wait_for_ms" mapstructure:"wait_for_ms"`
	HTTPStatus string `toml:"http_status_addr" json:"http_status_addr" mapstructure:"http_status_addr"`
}

// LogConfig controls internal/obslog's zerolog sink.
type LogConfig struct {
	Level string `toml:"level" json:"level" mapstructure:"level"`
	JSON  bool   `toml:"json" json:"json" mapstructure:"json"`
}

// Default returns the built-in configuration before any file/env/flag layer
// is applied.
func Default() *Config {
	return &Config{
		Timeouts: TimeoutsConfig{
			FastMs:            10_000,
			SlowMs:            35_000,
			BlockingPollMs:    65_000,
			TimeoutTagSeconds: 10.0,
			RetryDelayMs:      1_000,
		},
		State: StateConfig{
			SnapshotRingSize: 50,
			StopwatchCSVDir:  "",
		},
		Encryption: EncryptionConfig{
			DefaultMode: "NONE",
		},
		Bridge: BridgeConfig{
			Port:       8733,
			WaitForMs:  5_000,
			HTTPStatus: "127.0.0.1:8734",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// ConfigDir returns the macrorun configuration directory (~/.macrorun).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".macrorun"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load builds a Config by layering defaults, an optional config file, and
// MACRORUN_* environment overrides through viper. explicitPath, if non-empty,
// overrides the default ~/.macrorun/config.toml lookup.
func Load(explicitPath string) (*Config, error) {
	return LoadWithFlags(explicitPath, nil)
}

// LoadWithFlags is Load plus a callback to bind cobra/pflag flags onto the
// viper instance before the config file and env layers are merged in, so
// `macrorun run --bridge-port 9000` takes precedence the way the pack's
// cobra+viper commands bind persistent flags.
func LoadWithFlags(explicitPath string, bindFlags func(v *viper.Viper)) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("MACRORUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if bindFlags != nil {
		bindFlags(v)
	}

	path := explicitPath
	if path == "" {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("timeouts.fast_ms", d.Timeouts.FastMs)
	v.SetDefault("timeouts.slow_ms", d.Timeouts.SlowMs)
	v.SetDefault("timeouts.blocking_poll_ms", d.Timeouts.BlockingPollMs)
	v.SetDefault("timeouts.timeout_tag_seconds", d.Timeouts.TimeoutTagSeconds)
	v.SetDefault("timeouts.retry_delay_ms", d.Timeouts.RetryDelayMs)

	v.SetDefault("state.snapshot_ring_size", d.State.SnapshotRingSize)
	v.SetDefault("state.stopwatch_csv_dir", d.State.StopwatchCSVDir)

	v.SetDefault("encryption.default_mode", d.Encryption.DefaultMode)

	v.SetDefault("bridge.port", d.Bridge.Port)
	v.SetDefault("bridge.wait_for_ms", d.Bridge.WaitForMs)
	v.SetDefault("bridge.http_status_addr", d.Bridge.HTTPStatus)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
}

// Validate rejects configuration values the engine can't run with.
func (c *Config) Validate() error {
	var errs []string

	if c.Timeouts.FastMs <= 0 {
		errs = append(errs, "timeouts.fast_ms must be positive")
	}
	if c.Timeouts.SlowMs <= 0 {
		errs = append(errs, "timeouts.slow_ms must be positive")
	}
	if c.Timeouts.BlockingPollMs <= 0 {
		errs = append(errs, "timeouts.blocking_poll_ms must be positive")
	}
	if c.Timeouts.RetryDelayMs <= 0 {
		errs = append(errs, "timeouts.retry_delay_ms must be positive")
	}
	if c.State.SnapshotRingSize <= 0 {
		errs = append(errs, "state.snapshot_ring_size must be positive")
	}
	switch strings.ToUpper(c.Encryption.DefaultMode) {
	case "NONE", "STOREDKEY", "TMPKEY":
	default:
		errs = append(errs, fmt.Sprintf("encryption.default_mode must be NONE, STOREDKEY, or TMPKEY, got %q", c.Encryption.DefaultMode))
	}
	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		errs = append(errs, "bridge.port must be a valid TCP port")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// RetryDelay returns the configured retry delay as a time.Duration, used by
// internal/engine's retry loop (§4.5).
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Timeouts.RetryDelayMs) * time.Millisecond
}

// TimeoutTagDefault returns the default !TIMEOUT_TAG value in seconds, used
// to seed internal/engine's retry loop when a macro never sets its own
// !TIMEOUT_TAG (§4.5).
func (c *Config) TimeoutTagDefault() float64 {
	return c.Timeouts.TimeoutTagSeconds
}

var (
	globalCfg     *Config
	globalCfgOnce sync.Once
	globalCfgMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it from the default
// location on first access.
func Global() *Config {
	globalCfgOnce.Do(func() {
		cfg, err := Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "macrorun: config load failed, using defaults: %v\n", err)
			cfg = Default()
		}
		globalCfg = cfg
	})
	globalCfgMu.RLock()
	defer globalCfgMu.RUnlock()
	return globalCfg
}

// SetGlobal overrides the process-wide configuration (used by tests and by
// cmd/macrorun after resolving CLI flags).
func SetGlobal(cfg *Config) {
	globalCfgMu.Lock()
	defer globalCfgMu.Unlock()
	globalCfg = cfg
}
