package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brennhill/macrorun/internal/commands"
	"github.com/brennhill/macrorun/internal/config"
	"github.com/brennhill/macrorun/internal/engine"
	"github.com/brennhill/macrorun/internal/macro"
	"github.com/brennhill/macrorun/internal/state"
)

// newSerializeCmd runs a macro exactly like `run` but additionally writes
// the run's final state.Manager.Serialize() record to disk, giving the
// serialize/resume round trip (§4.4, §6) a concrete producer.
func newSerializeCmd() *cobra.Command {
	var maxLoops, snapshots int
	var out string
	var waitForBridge time.Duration

	cmd := &cobra.Command{
		Use:   "serialize <macro-file>",
		Short: "Run a macro and write its final execution state to a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = args[0] + ".state.json"
			}
			return serializeMacroFile(cmd.Context(), args[0], out, maxLoops, snapshots, waitForBridge)
		},
	}

	f := cmd.Flags()
	f.IntVar(&maxLoops, "max-loops", 1, "loop cap for LOOP (0 or 1 runs once)")
	f.IntVar(&snapshots, "snapshots", state.DefaultMaxSnapshots, "bounded snapshot ring size")
	f.StringVar(&out, "out", "", "snapshot output path (default <macro-file>.state.json)")
	f.DurationVar(&waitForBridge, "wait-for-bridge", 5*time.Second, "how long to wait for the browser bridge daemon to come up")

	return cmd
}

func serializeMacroFile(ctx context.Context, path, out string, maxLoops, snapshots int, waitFor time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading macro file: %w", err)
	}
	pm := macro.Parse(string(text), true)
	if len(pm.Errors) > 0 {
		return fmt.Errorf("%s: %d validation error(s)", path, len(pm.Errors))
	}

	cfg := config.Global()
	deps, err := buildDeps(ctx, cfg, waitFor)
	if err != nil {
		return err
	}

	dispatcher := engine.NewDispatcher()
	commands.RegisterAll(dispatcher)
	runner := engine.NewRunner(dispatcher, deps)

	st := state.New(path, len(pm.Commands), maxLoops, snapshots)
	trace := runner.Run(ctx, pm, st)
	printTrace(trace)

	data, err := st.Serialize()
	if err != nil {
		return fmt.Errorf("serializing state: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", out, err)
	}
	fmt.Printf("wrote snapshot to %s (status=%s)\n", out, st.Status())
	return nil
}
