package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brennhill/macrorun/internal/config"
	"github.com/brennhill/macrorun/internal/engine"
	"github.com/brennhill/macrorun/internal/obslog"
)

// version is set at build time via -ldflags, mirroring the teacher's
// cmd/gasoline-cmd versioning convention.
var version = "0.1.0"

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "macrorun",
		Short:   "Run, validate, and resume browser macros",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "path to config.toml (default ~/.macrorun/config.toml)")
	pf.Int("bridge-port", 0, "browser bridge daemon port (overrides config)")
	pf.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.Bool("log-json", false, "emit structured JSON logs instead of console format")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newSerializeCmd())
	root.AddCommand(newResumeCmd())

	return root
}

// initConfig loads layered configuration (defaults -> file -> MACRORUN_* env
// -> flags), applies it to internal/obslog and internal/engine, and stashes
// it as the process-wide config.Global() for subcommands to read back.
func initConfig(cmd *cobra.Command) error {
	cfg, err := config.LoadWithFlags(cfgFile, func(v *viper.Viper) {
		_ = v.BindPFlag("bridge.port", cmd.Flags().Lookup("bridge-port"))
		_ = v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
		_ = v.BindPFlag("log.json", cmd.Flags().Lookup("log-json"))
	})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.SetGlobal(cfg)

	obslog.Init(os.Stderr, cfg.Log.Level, cfg.Log.JSON)
	engine.Configure(cfg.RetryDelay(), cfg.TimeoutTagDefault())
	return nil
}
