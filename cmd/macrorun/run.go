package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brennhill/macrorun/internal/bridge"
	"github.com/brennhill/macrorun/internal/commands"
	"github.com/brennhill/macrorun/internal/config"
	"github.com/brennhill/macrorun/internal/engine"
	"github.com/brennhill/macrorun/internal/httpstatus"
	"github.com/brennhill/macrorun/internal/macro"
	"github.com/brennhill/macrorun/internal/obslog"
	"github.com/brennhill/macrorun/internal/state"
	"github.com/brennhill/macrorun/internal/tui"
	"github.com/brennhill/macrorun/internal/watch"
)

func newRunCmd() *cobra.Command {
	var maxLoops int
	var snapshots int
	var statusAddr string
	var watchFile bool
	var interactive bool
	var waitForBridge time.Duration

	cmd := &cobra.Command{
		Use:   "run <macro-file>",
		Short: "Execute a macro file against the browser bridge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMacroFile(cmd.Context(), args[0], runOptions{
				maxLoops:      maxLoops,
				snapshots:     snapshots,
				statusAddr:    statusAddr,
				watch:         watchFile,
				interactive:   interactive,
				waitForBridge: waitForBridge,
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&maxLoops, "max-loops", 1, "loop cap for LOOP (0 or 1 runs once)")
	f.IntVar(&snapshots, "snapshots", state.DefaultMaxSnapshots, "bounded snapshot ring size")
	f.StringVar(&statusAddr, "status-addr", "", "serve live /state, /snapshots, /stopwatch.csv on this address (disabled if empty)")
	f.BoolVar(&watchFile, "watch", false, "re-run automatically when the macro file changes")
	f.BoolVar(&interactive, "interactive", false, "render a terminal UI and let PAUSE/PROMPT block on operator input")
	f.DurationVar(&waitForBridge, "wait-for-bridge", 5*time.Second, "how long to wait for the browser bridge daemon to come up")

	return cmd
}

type runOptions struct {
	maxLoops      int
	snapshots     int
	statusAddr    string
	watch         bool
	interactive   bool
	waitForBridge time.Duration
}

func runMacroFile(ctx context.Context, path string, opts runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Global()

	deps, err := buildDeps(ctx, cfg, opts.waitForBridge)
	if err != nil {
		return err
	}
	if opts.interactive {
		flowUI := tui.New()
		defer flowUI.Stop()
		deps.FlowUI = flowUI
	}

	dispatcher := engine.NewDispatcher()
	commands.RegisterAll(dispatcher)
	runner := engine.NewRunner(dispatcher, deps)

	if !opts.watch {
		return runOnce(ctx, runner, path, opts)
	}
	return runWatched(ctx, runner, path, opts)
}

func runOnce(ctx context.Context, runner *engine.Runner, path string, opts runOptions) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading macro file: %w", err)
	}
	pm := macro.Parse(string(text), true)
	if len(pm.Errors) > 0 {
		for _, verr := range pm.Errors {
			fmt.Fprintf(os.Stderr, "line %d: %s\n", verr.LineNumber, verr.Message)
		}
		return fmt.Errorf("macro failed validation (%d error(s))", len(pm.Errors))
	}

	st := state.New(path, len(pm.Commands), opts.maxLoops, opts.snapshots)

	var statusServer *httpstatus.Server
	if opts.statusAddr != "" {
		statusServer = httpstatus.New(st)
		go func() {
			if serveErr := statusServer.ListenAndServe(opts.statusAddr); serveErr != nil {
				lg := obslog.Component("httpstatus")
				lg.Warn().Err(serveErr).Msg("status server stopped")
			}
		}()
	}

	trace := runner.Run(ctx, pm, st)
	printTrace(trace)

	if st.HasError() {
		fmt.Fprintf(os.Stderr, "macro stopped: %s (%d)\n", st.ErrorMessage(), st.ErrorCode())
		return fmt.Errorf("exit code %d", st.ErrorCode())
	}
	return nil
}

// runWatched re-parses and re-runs the macro file every time it changes on
// disk, per SPEC_FULL.md's live-reload domain-stack component.
func runWatched(ctx context.Context, runner *engine.Runner, path string, opts runOptions) error {
	w, err := watch.New(path, 300*time.Millisecond)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	w.Start(ctx)

	run := func() {
		if err := runOnce(ctx, runner, path, opts); err != nil {
			lg := obslog.Component("watch")
			lg.Warn().Err(err).Msg("watched run failed")
		}
	}
	run()

	for {
		select {
		case <-ctx.Done():
			return nil
		case report, ok := <-w.Reports():
			if !ok {
				return nil
			}
			if report.Err != nil {
				lg := obslog.Component("watch")
				lg.Warn().Err(report.Err).Msg("reload failed, keeping previous macro")
				continue
			}
			run()
		}
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, waitFor time.Duration) (engine.Deps, error) {
	if waitFor > 0 && !bridge.WaitForServer(cfg.Bridge.Port, waitFor) {
		return engine.Deps{}, fmt.Errorf("browser bridge daemon not reachable on port %d after %s", cfg.Bridge.Port, waitFor)
	}
	return engine.Deps{
		Browser: bridge.NewHTTPBrowserBridge(cfg.Bridge.Port),
		Network: bridge.NewHTTPNetworkManager(cfg.Bridge.Port),
		Cmdline: bridge.OSCmdlineExecutor{},
	}, nil
}

func printTrace(trace []engine.TraceStep) {
	for _, step := range trace {
		switch step.Status {
		case "ok":
			fmt.Printf("line %d: %s ok (%d attempt(s))\n", step.Line, step.Command, step.Attempts)
		case "ignored":
			fmt.Printf("line %d: %s ignored error: %s\n", step.Line, step.Command, step.ErrorMsg)
		case "error":
			fmt.Printf("line %d: %s FAILED: %s\n", step.Line, step.Command, step.ErrorMsg)
		}
	}
}
