// errors.go — CommandError: the typed error handlers return, carrying a
// stable codes.Code. Mirrors the teacher's StructuredError pattern
// (internal/mcp/errors.go) minus the MCP envelope, which this repo has no
// use for — callers here are the retry engine and the state manager, not an
// LLM-facing JSON-RPC client.
package engine

import "github.com/brennhill/macrorun/internal/codes"

// CommandError is returned by a Handler when a command fails in a way the
// engine's state machine and retry policy need to reason about (§4.4, §4.5).
type CommandError struct {
	Code codes.Code
	msg  string
}

func (e *CommandError) Error() string { return e.msg }

// NewCommandError constructs a CommandError with the given code and message.
func NewCommandError(code codes.Code, msg string) *CommandError {
	return &CommandError{Code: code, msg: msg}
}

// CodeOf extracts the codes.Code from err, defaulting to codes.UnknownError
// for errors that aren't a *CommandError (§4.4: "non-EncryptionError/
// CommandError throws surface as UnknownError").
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if ce, ok := err.(*CommandError); ok {
		return ce.Code
	}
	return codes.UnknownError
}
