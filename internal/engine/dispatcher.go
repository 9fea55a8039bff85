// dispatcher.go — Dispatcher: handler registry and single-command execution.
// Grounded on the teacher's QueryDispatcher (internal/queries/dispatcher.go):
// a struct owning its own mutex, a factory that wires default state, and a
// narrow public surface for registering/looking up work by key — keyed here
// by macro.CommandType rather than a query ID.
package engine

import (
	"fmt"
	"sync"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/macro"
)

// Handler executes one parsed Command against the given context.
type Handler func(c *CommandContext) error

// Dispatcher owns the command-type -> Handler registry.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[macro.CommandType]Handler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[macro.CommandType]Handler)}
}

// Register installs the handler for a command type, overwriting any prior
// registration (tests routinely replace a handler with a fake).
func (d *Dispatcher) Register(t macro.CommandType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Handler returns the registered handler for t, if any.
func (d *Dispatcher) Handler(t macro.CommandType) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[t]
	return h, ok
}

// Dispatch runs the handler registered for cc.Command.Type. §4.3 requires an
// UNKNOWN command word to surface a SYNTAX_ERROR (unless !ERRORIGNORE is
// set, which the caller applies via the propagation policy); any other
// command type with no registered handler is a dispatcher defect rather
// than a macro authoring error, so it surfaces as ScriptError instead.
func (d *Dispatcher) Dispatch(cc *CommandContext) error {
	h, ok := d.Handler(cc.Command.Type)
	if !ok {
		if cc.Command.Type == macro.CmdUnknown {
			return NewCommandError(codes.SyntaxError, fmt.Sprintf("unknown command %q", cc.Command.Raw))
		}
		return NewCommandError(codes.ScriptError, fmt.Sprintf("no handler registered for command %s", cc.Command.Type))
	}
	return h(cc)
}
