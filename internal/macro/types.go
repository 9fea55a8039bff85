// types.go — macro language AST: Parameter, Command, ParsedMacro.
// Mirrors the teacher pack's habit of small, JSON-tagged value types with a
// single owning file per concern (internal/queries/types.go).
package macro

import "github.com/brennhill/macrorun/internal/vars"

// CommandType is the closed set of recognized command words (§6), canonicalized
// upper-case. Unrecognized input tokenizes to Unknown.
type CommandType string

const (
	CmdVersion             CommandType = "VERSION"
	CmdURL                 CommandType = "URL"
	CmdTab                 CommandType = "TAB"
	CmdFrame               CommandType = "FRAME"
	CmdBack                CommandType = "BACK"
	CmdRefresh             CommandType = "REFRESH"
	CmdNavigate            CommandType = "NAVIGATE"
	CmdTag                 CommandType = "TAG"
	CmdClick               CommandType = "CLICK"
	CmdEvent               CommandType = "EVENT"
	CmdEvents              CommandType = "EVENTS"
	CmdSet                 CommandType = "SET"
	CmdAdd                 CommandType = "ADD"
	CmdExtract             CommandType = "EXTRACT"
	CmdSaveAs              CommandType = "SAVEAS"
	CmdSaveItem            CommandType = "SAVEITEM"
	CmdPrompt              CommandType = "PROMPT"
	CmdSearch              CommandType = "SEARCH"
	CmdWait                CommandType = "WAIT"
	CmdPause               CommandType = "PAUSE"
	CmdStopwatch           CommandType = "STOPWATCH"
	CmdOnDownload          CommandType = "ONDOWNLOAD"
	CmdFilter              CommandType = "FILTER"
	CmdFileDelete          CommandType = "FILEDELETE"
	CmdOnDialog            CommandType = "ONDIALOG"
	CmdOnCertificateDialog CommandType = "ONCERTIFICATEDIALOG"
	CmdOnErrorDialog       CommandType = "ONERRORDIALOG"
	CmdOnLogin             CommandType = "ONLOGIN"
	CmdOnPrint             CommandType = "ONPRINT"
	CmdOnSecurityDialog    CommandType = "ONSECURITYDIALOG"
	CmdOnWebpageDialog     CommandType = "ONWEBPAGEDIALOG"
	CmdClear               CommandType = "CLEAR"
	CmdProxy               CommandType = "PROXY"
	CmdScreenshot          CommandType = "SCREENSHOT"
	CmdCmdline             CommandType = "CMDLINE"
	CmdPrint               CommandType = "PRINT"
	CmdSize                CommandType = "SIZE"
	CmdImageClick          CommandType = "IMAGECLICK"
	CmdImageSearch         CommandType = "IMAGESEARCH"
	CmdWinClick            CommandType = "WINCLICK"
	CmdDisconnect          CommandType = "DISCONNECT"
	CmdRedial              CommandType = "REDIAL"
	CmdDS                  CommandType = "DS"
	CmdExec                CommandType = "EXEC"
	CmdUnknown             CommandType = "UNKNOWN"
)

// knownCommands is the closed set used to classify a command word.
var knownCommands = map[string]CommandType{
	"VERSION": CmdVersion, "URL": CmdURL, "TAB": CmdTab, "FRAME": CmdFrame,
	"BACK": CmdBack, "REFRESH": CmdRefresh, "NAVIGATE": CmdNavigate,
	"TAG": CmdTag, "CLICK": CmdClick, "EVENT": CmdEvent, "EVENTS": CmdEvents,
	"SET": CmdSet, "ADD": CmdAdd, "EXTRACT": CmdExtract, "SAVEAS": CmdSaveAs,
	"SAVEITEM": CmdSaveItem, "PROMPT": CmdPrompt, "SEARCH": CmdSearch,
	"WAIT": CmdWait, "PAUSE": CmdPause, "STOPWATCH": CmdStopwatch,
	"ONDOWNLOAD": CmdOnDownload, "FILTER": CmdFilter, "FILEDELETE": CmdFileDelete,
	"ONDIALOG": CmdOnDialog, "ONCERTIFICATEDIALOG": CmdOnCertificateDialog,
	"ONERRORDIALOG": CmdOnErrorDialog, "ONLOGIN": CmdOnLogin, "ONPRINT": CmdOnPrint,
	"ONSECURITYDIALOG": CmdOnSecurityDialog, "ONWEBPAGEDIALOG": CmdOnWebpageDialog,
	"CLEAR": CmdClear, "PROXY": CmdProxy, "SCREENSHOT": CmdScreenshot,
	"CMDLINE": CmdCmdline, "PRINT": CmdPrint, "SIZE": CmdSize,
	"IMAGECLICK": CmdImageClick, "IMAGESEARCH": CmdImageSearch, "WINCLICK": CmdWinClick,
	"DISCONNECT": CmdDisconnect, "REDIAL": CmdRedial, "DS": CmdDS, "EXEC": CmdExec,
}

// Parameter is either KEY=value, KEY="quoted", or a bare positional token
// (stored with Value "true"). RawValue preserves the surface form for
// faithful serialization; Value is the post-unquoting, unescaped form.
type Parameter struct {
	Key       string
	Value     string
	RawValue  string
	Positional bool
	Variables []vars.Ref
}

// Command is one parsed macro line.
type Command struct {
	Type       CommandType
	Raw        string
	LineNumber int
	Parameters []Parameter
	Variables  []vars.Ref // union of all parameters' Variables, deduped
}

// Param does a case-insensitive lookup of a named parameter, returning its
// RawValue. ok is false if the key is absent.
func (c *Command) Param(key string) (string, bool) {
	for _, p := range c.Parameters {
		if p.Positional {
			continue
		}
		if equalFold(p.Key, key) {
			return p.RawValue, true
		}
	}
	return "", false
}

// ParamValue is like Param but returns the unescaped Value instead of RawValue.
func (c *Command) ParamValue(key string) (string, bool) {
	for _, p := range c.Parameters {
		if p.Positional {
			continue
		}
		if equalFold(p.Key, key) {
			return p.Value, true
		}
	}
	return "", false
}

// Positionals returns parameters that were not KEY=value pairs, in order.
func (c *Command) Positionals() []Parameter {
	out := make([]Parameter, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		if p.Positional {
			out = append(out, p)
		}
	}
	return out
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 32
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 32
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// LineKind classifies a raw source line (§4.1).
type LineKind int

const (
	LineEmpty LineKind = iota
	LineComment
	LineCommand
)

// SourceLine is one line of the original script, classified.
type SourceLine struct {
	Kind    LineKind
	Raw     string
	Comment string // trimmed text after the leading ' for LineComment
	Command *Command
}

// ValidationError is a non-fatal parser diagnostic (§4.1: validation never
// aborts parsing).
type ValidationError struct {
	LineNumber int
	Message    string
}

// ParsedMacro is the immutable result of Parse.
type ParsedMacro struct {
	Lines    []SourceLine
	Commands []Command
	Comments []string
	Variables []vars.Ref // deduped by name across all commands
	Errors   []ValidationError
}
