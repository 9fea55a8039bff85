// context.go — CommandContext: everything a command handler needs to act on
// one parsed Command (§4.3, §5). Grounded on the teacher's interact-tool
// workflow helpers (internal/tools/interact/workflow.go): a handler gets a
// narrow, already-assembled context object instead of reaching into global
// state, and records its own trace step.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/brennhill/macrorun/internal/bridge"
	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/macro"
	"github.com/brennhill/macrorun/internal/obslog"
	"github.com/brennhill/macrorun/internal/state"
	"github.com/brennhill/macrorun/internal/vars"
)

// Deps bundles the external-world seams a Dispatcher needs. A handler never
// holds these directly; it reaches them through CommandContext.
type Deps struct {
	Browser  bridge.BrowserBridge
	Dialogs  bridge.DialogBridge
	Cmdline  bridge.CmdlineExecutor
	Network  bridge.NetworkManager
	FlowUI   bridge.FlowControlUI
}

// CommandContext is handed to a Handler for exactly one Command execution.
type CommandContext struct {
	Ctx     context.Context
	Command macro.Command
	State   *state.Manager
	Deps    Deps

	// CorrelationID ties every log line and retry attempt for one command
	// execution together, the way joestump-claude-ops's session/hub layer
	// tags a request's async fan-out with one ID end to end.
	CorrelationID string
}

// Vars is a convenience accessor for the run's variable context.
func (c *CommandContext) Vars() *vars.Context { return c.State.Vars() }

// GetParam returns a parameter's expanded value. ok is false if absent.
func (c *CommandContext) GetParam(key string) (string, bool) {
	raw, ok := c.Command.Param(key)
	if !ok {
		return "", false
	}
	return c.Vars().Expand(raw).Expanded, true
}

// RequireParam returns a parameter's expanded value or a MissingParameter error.
func (c *CommandContext) RequireParam(key string) (string, error) {
	v, ok := c.GetParam(key)
	if !ok {
		return "", NewCommandError(codes.MissingParameter, "missing required parameter "+key)
	}
	return v, nil
}

// Log returns a logger scoped to this command's macro/line/loop, per the
// teacher's Macro(name, line, loop) scoping convention (internal/obslog).
func (c *CommandContext) Log() zerolog.Logger {
	lg := obslog.Macro(string(c.Command.Type), c.Command.LineNumber, c.State.LoopCounter())
	if c.CorrelationID != "" {
		lg = lg.With().Str("correlation_id", c.CorrelationID).Logger()
	}
	return lg
}
