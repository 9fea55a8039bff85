package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/macro"
	"github.com/brennhill/macrorun/internal/state"
)

func newRunnerTest(t *testing.T) (*Runner, *Dispatcher) {
	t.Helper()
	d := NewDispatcher()
	return NewRunner(d, Deps{}), d
}

func TestRunner_Run_AllStepsSucceed(t *testing.T) {
	r, d := newRunnerTest(t)
	var order []string
	d.Register(macro.CmdPrint, func(c *CommandContext) error {
		order = append(order, "print")
		return nil
	})
	d.Register(macro.CmdClear, func(c *CommandContext) error {
		order = append(order, "clear")
		return nil
	})

	pm := macro.ParsedMacro{Commands: []macro.Command{
		{Type: macro.CmdPrint, LineNumber: 1},
		{Type: macro.CmdClear, LineNumber: 2},
	}}
	st := state.New("demo.iim", len(pm.Commands), 1, 10)

	trace := r.Run(context.Background(), pm, st)
	require.Len(t, trace, 2)
	assert.Equal(t, "ok", trace[0].Status)
	assert.Equal(t, "ok", trace[1].Status)
	assert.Equal(t, []string{"print", "clear"}, order)
	assert.Equal(t, state.StatusCompleted, st.Status())
}

func TestRunner_Run_StopsOnUnignoredError(t *testing.T) {
	r, d := newRunnerTest(t)
	d.Register(macro.CmdPrint, func(c *CommandContext) error {
		return NewCommandError(codes.ScriptError, "boom")
	})
	d.Register(macro.CmdClear, func(c *CommandContext) error {
		t.Fatal("should not reach second command after an unignored error")
		return nil
	})

	pm := macro.ParsedMacro{Commands: []macro.Command{
		{Type: macro.CmdPrint, LineNumber: 1},
		{Type: macro.CmdClear, LineNumber: 2},
	}}
	st := state.New("demo.iim", len(pm.Commands), 1, 10)

	trace := r.Run(context.Background(), pm, st)
	require.Len(t, trace, 1)
	assert.Equal(t, "error", trace[0].Status)
	assert.True(t, st.HasError())
	assert.Equal(t, codes.ScriptError, st.ErrorCode())
}

func TestRunner_Run_ErrorIgnoreContinues(t *testing.T) {
	r, d := newRunnerTest(t)
	d.Register(macro.CmdPrint, func(c *CommandContext) error {
		return NewCommandError(codes.ScriptError, "boom")
	})
	secondRan := false
	d.Register(macro.CmdClear, func(c *CommandContext) error {
		secondRan = true
		return nil
	})

	pm := macro.ParsedMacro{Commands: []macro.Command{
		{Type: macro.CmdPrint, LineNumber: 1},
		{Type: macro.CmdClear, LineNumber: 2},
	}}
	st := state.New("demo.iim", len(pm.Commands), 1, 10)
	st.Vars().SetSystemTrusted("!ERRORIGNORE", "YES")

	trace := r.Run(context.Background(), pm, st)
	require.Len(t, trace, 2)
	assert.Equal(t, "ignored", trace[0].Status)
	assert.Equal(t, "ok", trace[1].Status)
	assert.True(t, secondRan)
	assert.False(t, st.HasError())
}

func TestRunner_Run_ErrorIgnoreDoesNotSuppressUserAbort(t *testing.T) {
	r, d := newRunnerTest(t)
	d.Register(macro.CmdPause, func(c *CommandContext) error {
		return NewCommandError(codes.UserAbort, "pause not resumed")
	})
	secondRan := false
	d.Register(macro.CmdClear, func(c *CommandContext) error {
		secondRan = true
		return nil
	})

	pm := macro.ParsedMacro{Commands: []macro.Command{
		{Type: macro.CmdPause, LineNumber: 1},
		{Type: macro.CmdClear, LineNumber: 2},
	}}
	st := state.New("demo.iim", len(pm.Commands), 1, 10)
	st.Vars().SetSystemTrusted("!ERRORIGNORE", "YES")

	trace := r.Run(context.Background(), pm, st)
	require.Len(t, trace, 1)
	assert.Equal(t, "error", trace[0].Status)
	assert.False(t, secondRan)
	assert.True(t, st.HasError())
	assert.Equal(t, codes.UserAbort, st.ErrorCode())
}

func TestRunner_Run_ErrorLoopSkipsToNextIteration(t *testing.T) {
	r, d := newRunnerTest(t)
	printRuns := 0
	d.Register(macro.CmdPrint, func(c *CommandContext) error {
		printRuns++
		return NewCommandError(codes.ScriptError, "boom")
	})
	clearRuns := 0
	d.Register(macro.CmdClear, func(c *CommandContext) error {
		clearRuns++
		t.Fatal("should not reach second command; !ERRORLOOP skips to the next loop iteration, not the next command")
		return nil
	})

	pm := macro.ParsedMacro{Commands: []macro.Command{
		{Type: macro.CmdPrint, LineNumber: 1},
		{Type: macro.CmdClear, LineNumber: 2},
	}}
	st := state.New("demo.iim", len(pm.Commands), 3, 10)
	st.Vars().SetSystemTrusted("!ERRORLOOP", "YES")

	trace := r.Run(context.Background(), pm, st)
	assert.Equal(t, 3, printRuns)
	assert.Equal(t, 0, clearRuns)
	require.Len(t, trace, 3)
	for _, step := range trace {
		assert.Equal(t, "error", step.Status)
	}
	// The first two failures each land inside an iteration !ERRORLOOP still
	// permits skipping; the third coincides with the loop limit itself, so
	// the run stops with that failure still recorded as the terminal error.
	assert.Equal(t, state.StatusError, st.Status())
	assert.True(t, st.HasError())
	assert.Equal(t, codes.ScriptError, st.ErrorCode())
}

func TestRunner_Run_LoopsUntilMaxLoops(t *testing.T) {
	r, d := newRunnerTest(t)
	runs := 0
	d.Register(macro.CmdPrint, func(c *CommandContext) error {
		runs++
		return nil
	})

	pm := macro.ParsedMacro{Commands: []macro.Command{{Type: macro.CmdPrint, LineNumber: 1}}}
	st := state.New("demo.iim", len(pm.Commands), 3, 10)

	trace := r.Run(context.Background(), pm, st)
	assert.Equal(t, 3, runs)
	assert.Len(t, trace, 3)
	assert.Equal(t, state.StatusCompleted, st.Status())
}
