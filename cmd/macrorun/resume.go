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

// newResumeCmd continues a previously serialized run: it restores cursor,
// loop counter, variables and error state from the snapshot, re-parses the
// same macro file for its command list (the serialized record carries no
// commands, only execution state, per §4.4), and resumes execution from
// wherever it left off.
func newResumeCmd() *cobra.Command {
	var waitForBridge time.Duration

	cmd := &cobra.Command{
		Use:   "resume <snapshot.json> <macro-file>",
		Short: "Resume a macro run from a serialized state snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resumeMacroFile(cmd.Context(), args[0], args[1], waitForBridge)
		},
	}
	cmd.Flags().DurationVar(&waitForBridge, "wait-for-bridge", 5*time.Second, "how long to wait for the browser bridge daemon to come up")
	return cmd
}

func resumeMacroFile(ctx context.Context, snapshotPath, macroPath string, waitFor time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshotData, err := os.ReadFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	st, err := state.Deserialize(snapshotData)
	if err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	text, err := os.ReadFile(macroPath)
	if err != nil {
		return fmt.Errorf("reading macro file: %w", err)
	}
	pm := macro.Parse(string(text), true)
	if len(pm.Errors) > 0 {
		return fmt.Errorf("%s: %d validation error(s)", macroPath, len(pm.Errors))
	}
	if st.TotalLines() != len(pm.Commands) {
		return fmt.Errorf("snapshot was taken against a macro with %d commands, but %s has %d; they must match to resume", st.TotalLines(), macroPath, len(pm.Commands))
	}

	cfg := config.Global()
	deps, err := buildDeps(ctx, cfg, waitFor)
	if err != nil {
		return err
	}

	dispatcher := engine.NewDispatcher()
	commands.RegisterAll(dispatcher)
	runner := engine.NewRunner(dispatcher, deps)

	st.ClearError()
	trace := runner.Run(ctx, pm, st)
	printTrace(trace)

	if st.HasError() {
		fmt.Fprintf(os.Stderr, "macro stopped: %s (%d)\n", st.ErrorMessage(), st.ErrorCode())
		return fmt.Errorf("exit code %d", st.ErrorCode())
	}
	return nil
}
