package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/macro"
)

func TestDispatcher_RegisterAndDispatch(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.Register(macro.CmdPrint, func(c *CommandContext) error {
		called = true
		return nil
	})

	cc := &CommandContext{Ctx: context.Background(), Command: macro.Command{Type: macro.CmdPrint}}
	err := d.Dispatch(cc)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestDispatcher_UnregisteredCommandIsScriptError(t *testing.T) {
	d := NewDispatcher()
	cc := &CommandContext{Ctx: context.Background(), Command: macro.Command{Type: macro.CmdVersion}}
	err := d.Dispatch(cc)
	require.Error(t, err)
	assert.Equal(t, codes.ScriptError, CodeOf(err))
}

func TestDispatcher_UnknownCommandIsSyntaxError(t *testing.T) {
	d := NewDispatcher()
	cc := &CommandContext{Ctx: context.Background(), Command: macro.Command{Type: macro.CmdUnknown, Raw: "BOGUS FOO=bar"}}
	err := d.Dispatch(cc)
	require.Error(t, err)
	assert.Equal(t, codes.SyntaxError, CodeOf(err))
}

func TestDispatcher_HandlerLookup(t *testing.T) {
	d := NewDispatcher()
	_, ok := d.Handler(macro.CmdClick)
	assert.False(t, ok)

	d.Register(macro.CmdClick, func(*CommandContext) error { return nil })
	h, ok := d.Handler(macro.CmdClick)
	require.True(t, ok)
	assert.NotNil(t, h)
}
