// timeout.go — Per-command-type timeout policy for bridge calls. The retry
// engine does not call CommandTimeout; it bounds attempts by !TIMEOUT_TAG
// alone (§4.5). Adapted from the teacher's
// per-tool timeout classification: there it keyed off MCP method/tool name,
// here it keys off the macro CommandType.
package bridge

import "time"

// Timeout tiers for bridge calls.
const (
	FastTimeout  = 10 * time.Second
	SlowTimeout  = 35 * time.Second
	BlockingPoll = 65 * time.Second
)

// CommandTimeout returns the default bridge-call timeout for a command,
// prior to any !TIMEOUT_TAG override. CLICK, EVENT and TAG, which can
// trigger navigation or a slow handler, get the slow tier; ONDOWNLOAD,
// ONDIALOG and ONLOGIN, which block until the browser raises an
// asynchronous event, get the blocking-poll tier; everything else (EXTRACT
// and other reads) gets the fast tier.
func CommandTimeout(command string) time.Duration {
	switch command {
	case "CLICK", "EVENT", "TAG":
		return SlowTimeout
	case "ONDOWNLOAD", "ONDIALOG", "ONLOGIN":
		return BlockingPoll
	default:
		return FastTimeout
	}
}
