// run.go — the execution loop (§4.3): walk a ParsedMacro's commands against
// a Dispatcher, one command at a time, driving the state.Manager's cursor,
// loop counter and status machine, honoring !ERRORIGNORE (§4.4's Open
// Question, resolved here) and bounded retry (§4.5).
//
// Loop-and-continue-on-error structure is grounded on the teacher's
// recording playback engine (internal/recording/playback_engine.go):
// execute each step, record a trace entry, and keep going unless the run is
// terminally stopped.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/macro"
	"github.com/brennhill/macrorun/internal/state"
)

// TraceStep records one command's execution outcome, mirroring the
// teacher's WorkflowStep (internal/tools/interact/workflow.go).
type TraceStep struct {
	Line          int
	Command       macro.CommandType
	Attempts      int
	Status        string // "ok", "error", "ignored"
	ErrorMsg      string
	CorrelationID string
}

// Runner drives one macro execution from start to completion or abort.
type Runner struct {
	Dispatcher *Dispatcher
	Deps       Deps
}

// NewRunner constructs a Runner over the given dispatcher and dependencies.
func NewRunner(d *Dispatcher, deps Deps) *Runner {
	return &Runner{Dispatcher: d, Deps: deps}
}

// Run executes pm against st until the macro completes, loop limit is
// reached, the run is aborted, or a non-ignored error stops it. Returns the
// full execution trace.
func (r *Runner) Run(ctx context.Context, pm macro.ParsedMacro, st *state.Manager) []TraceStep {
	var trace []TraceStep
	st.Start()

loops:
	for {
		for st.CurrentLine() < len(pm.Commands) {
			if ctx.Err() != nil {
				st.SetError(codes.UserAbort, "context cancelled")
				return trace
			}
			if !st.CanContinue() {
				return trace
			}

			idx := st.CurrentLine()
			cmd := pm.Commands[idx]
			step := r.runOne(ctx, cmd, st)
			trace = append(trace, step)

			if step.Status == "error" {
				// §7: a failed, non-ignored command stops the run unless
				// !ERRORLOOP permits skipping the rest of this loop body and
				// picking back up at the next loop iteration.
				if st.ErrorCode() != codes.UserAbort && errorLoopContinues(st) && !st.IsLoopLimitReached() {
					st.ClearError()
					st.Resume()
					st.IncrementLoop()
					st.ResetForNextLoop()
					continue loops
				}
				return trace
			}
			st.NextLine()
		}

		if st.IsLoopLimitReached() {
			st.Complete()
			return trace
		}
		st.IncrementLoop()
		st.ResetForNextLoop()
	}
}

// errorLoopContinues reports whether !ERRORLOOP is set to YES, permitting a
// failed command to skip the rest of its loop iteration rather than stop the
// run entirely (§7).
func errorLoopContinues(st *state.Manager) bool {
	v, ok := st.Vars().Get("!ERRORLOOP")
	return ok && v == "YES"
}

// runOne executes a single command with retry and translates the result
// into a trace step, applying !ERRORIGNORE (§4.4/§9): when set to "YES", a
// failed command is marked "ignored" without setting the state manager's
// error; otherwise the error is recorded on the state manager and Run stops
// or, under !ERRORLOOP, moves on to the next loop iteration.
func (r *Runner) runOne(ctx context.Context, cmd macro.Command, st *state.Manager) TraceStep {
	correlationID := uuid.NewString()
	cc := &CommandContext{Ctx: ctx, Command: cmd, State: st, Deps: r.Deps, CorrelationID: correlationID}

	outcome := ExecuteWithTimeoutRetry(cc, r.Dispatcher.Dispatch)
	step := TraceStep{Line: cmd.LineNumber, Command: cmd.Type, Attempts: outcome.Attempts, CorrelationID: correlationID}

	if r.Deps.FlowUI != nil {
		r.Deps.FlowUI.ShowStatus(cmd.LineNumber, st.LoopCounter(), time.Duration(st.ExecutionTimeMs())*time.Millisecond)
	}

	lg := cc.Log()
	if outcome.Err == nil {
		step.Status = "ok"
		lg.Info().Int("attempts", outcome.Attempts).Msg("command dispatched")
		return step
	}

	step.ErrorMsg = outcome.Err.Error()
	code := CodeOf(outcome.Err)
	// §7: !ERRORIGNORE suppresses a failed command and continues the run,
	// but never for USER_ABORT — a user cancelling PAUSE/PROMPT, or a
	// cancelled context, always stops the run regardless of !ERRORIGNORE.
	if code != codes.UserAbort && errorIgnored(st) {
		step.Status = "ignored"
		lg.Warn().Err(outcome.Err).Msg("command failed; ignored by !ERRORIGNORE")
		return step
	}
	step.Status = "error"
	st.SetError(code, outcome.Err.Error())
	lg.Error().Err(outcome.Err).Int("code", int(code)).Msg("command failed")
	return step
}

// errorIgnored reports whether !ERRORIGNORE is set to YES for the run.
func errorIgnored(st *state.Manager) bool {
	v, ok := st.Vars().Get("!ERRORIGNORE")
	return ok && v == "YES"
}
