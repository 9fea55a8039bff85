// bridge.go — narrow interfaces the engine drives to reach the outside world
// (§6): a browser, its dialogs, a child process, the network layer, and a
// flow-control UI. Handlers depend on these interfaces, never on a concrete
// browser SDK, so the engine stays testable with fakes.
package bridge

import (
	"context"
	"time"
)

// BrowserBridge is the seam between the command dispatcher and whatever
// drives the actual browser (CDP, WebDriver, an extension channel). TAG,
// CLICK, EVENT, FRAME, URL GOTO and friends all go through this.
type BrowserBridge interface {
	// Navigate loads url in the active tab/frame.
	Navigate(ctx context.Context, url string) error
	// FindElement resolves a TAG-style selector to an opaque handle.
	// Returns codes.ElementNotFound wrapped as an error when nothing matches.
	FindElement(ctx context.Context, selector string) (ElementHandle, error)
	// Click dispatches a click on the given element handle.
	Click(ctx context.Context, el ElementHandle) error
	// SetValue fills a form element's value (TAG ... FORM:VALUE).
	SetValue(ctx context.Context, el ElementHandle, value string) error
	// Extract reads an element's text/attribute content into the extract buffer.
	Extract(ctx context.Context, el ElementHandle, attribute string) (string, error)
	// FireEvent dispatches a synthetic DOM event (EVENT command).
	FireEvent(ctx context.Context, el ElementHandle, eventName string, params map[string]string) error
	// Screenshot captures the current viewport or element and returns PNG bytes.
	Screenshot(ctx context.Context, el *ElementHandle) ([]byte, error)
	// CurrentURL returns the active frame's URL (used by !URLCURRENT).
	CurrentURL(ctx context.Context) (string, error)
	// Back navigates the active tab one entry back in its history.
	Back(ctx context.Context) error
	// Refresh reloads the active tab.
	Refresh(ctx context.Context) error
	// SwitchTab selects a tab by index (T=) or opens/closes one per action.
	SwitchTab(ctx context.Context, action, target string) error
	// SwitchFrame selects a frame by index or name.
	SwitchFrame(ctx context.Context, target string) error
}

// ElementHandle is an opaque reference into the live DOM. Implementations
// may embed whatever backend-specific node ID they need.
type ElementHandle struct {
	ID string
}

// DialogKind enumerates the browser-native dialogs ONDIALOG can intercept.
type DialogKind string

const (
	DialogAlert       DialogKind = "ALERT"
	DialogConfirm     DialogKind = "CONFIRM"
	DialogPrompt      DialogKind = "PROMPT"
	DialogBeforeUnload DialogKind = "BEFOREUNLOAD"
)

// DialogEvent is delivered to a registered handler when the browser raises
// a native dialog (§4.6 ONDIALOG family).
type DialogEvent struct {
	Kind    DialogKind
	Message string
}

// DialogResponse tells the bridge how to resolve a pending dialog.
type DialogResponse struct {
	Accept bool
	Text   string // used for PROMPT dialogs
}

// DialogBridge lets the engine register a persistent ONDIALOG policy and
// resolve individual dialogs as they arrive.
type DialogBridge interface {
	// SetPolicy installs the handler invoked for every dialog until replaced.
	// A nil handler reverts to the browser's native (blocking) behavior.
	SetPolicy(handler func(DialogEvent) DialogResponse)
	// Pending returns the currently queued dialog, if the browser is
	// blocked waiting on one (used by !DIALOGTEXT captures and tests).
	Pending() (DialogEvent, bool)
	// SendMessage delivers a typed LOGIN_CONFIG/*_CONFIG message (§6
	// "DialogBridge.sendMessage") describing the policy ONLOGIN or an
	// ON*DIALOG/ONPRINT command just armed.
	SendMessage(ctx context.Context, msg DialogConfigMessage) (DialogConfigResult, error)
}

// DialogConfigMessage is the wire shape ONLOGIN and the ON*DIALOG/ONPRINT
// family send over DialogBridge.SendMessage (§6): a message Type such as
// "LOGIN_CONFIG" or "ONDIALOG_CONFIG", an ID correlating it back to the
// command that sent it, and a Payload carrying the actual config.
type DialogConfigMessage struct {
	Type      string
	ID        string
	Timestamp time.Time
	Payload   DialogConfigPayload
}

// DialogConfigPayload mirrors §6's "{append, dialogTypes, config: {...}}".
type DialogConfigPayload struct {
	Append      bool
	DialogTypes []string
	Config      DialogConfig
}

// DialogConfig mirrors §6's per-message config block. Not every field
// applies to every message type: LOGIN_CONFIG uses User/Password/Timeout;
// the ON*DIALOG/ONPRINT family uses Pos/Button/Content/Timeout.
type DialogConfig struct {
	Pos      string
	Button   string
	Content  string
	User     string
	Password string
	Timeout  time.Duration
	Active   bool
}

// DialogConfigResult is a DialogBridge.SendMessage outcome (§6 "{success,
// error?}").
type DialogConfigResult struct {
	Success bool
	Error   string
}

// CmdlineExecutor runs an external process for EXEC/CMDLINE (§4.6) and
// returns its captured stdout, exit status, and any launch error.
type CmdlineExecutor interface {
	Run(ctx context.Context, command string, args []string, timeout time.Duration) (CmdlineResult, error)
}

// CmdlineResult captures the outcome of one CmdlineExecutor.Run call.
type CmdlineResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// NetworkManager answers the connectivity questions DISCONNECT/REDIAL and
// ONDOWNLOAD need (§4.6): whether the bridge's transport is reachable, and
// how to wait for it to come back after a deliberate disconnect.
type NetworkManager interface {
	Disconnect(ctx context.Context) error
	Redial(ctx context.Context, timeout time.Duration) error
	IsConnected(ctx context.Context) bool
}

// FlowControlUI is the optional interactive surface PAUSE and PROMPT render
// through (a TUI, in this repo's case). With a nil FlowControlUI, PROMPT
// fails fast with a script error and PAUSE marks the run paused and returns
// without blocking on user input.
type FlowControlUI interface {
	// Pause blocks until the operator resumes or aborts the run.
	Pause(ctx context.Context, reason string) (resume bool, err error)
	// Prompt collects one line of operator input for the PROMPT command.
	Prompt(ctx context.Context, message string, defaultValue string) (string, error)
	// Alert displays a message for acknowledgment only, with no variable
	// captured (PROMPT with no VAR, §4.6). Blocks until dismissed.
	Alert(ctx context.Context, message string, title string) error
	// ShowStatus pushes a non-blocking status line (current macro line, loop
	// count, elapsed time) to the UI, if one is attached.
	ShowStatus(line int, loop int, elapsed time.Duration)
}
