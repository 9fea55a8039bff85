// codes.go — stable error code catalog for the macro engine.
// Codes are negative integers per spec; 0 is OK. Every handler result and
// every state-manager error carries one of these.
package codes

// Code is a stable, negative error code. Zero means success.
type Code int

const (
	OK                      Code = 0
	UserAbort               Code = -100
	SyntaxError             Code = -910
	ElementNotFound         Code = -920
	Timeout                 Code = -930
	FrameError              Code = -940
	DecryptionBadPassword   Code = -942
	DecryptionBadEncoding   Code = -943
	DownloadError           Code = -950
	FileError               Code = -960
	StopwatchAlreadyStarted Code = -961
	StopwatchNotStarted     Code = -962
	ScriptError             Code = -970
	DatasourceError         Code = -980
	LoopLimit               Code = -990
	UnknownError            Code = -999

	// MissingParameter and InvalidParameter are distinct from the error-code
	// space above: they are validation-stage codes, not runtime error codes.
	MissingParameter Code = -1
	InvalidParameter Code = -2
)

// Message returns a short, stable human-readable description for a code.
// Handlers may prefix or wrap this; it is never the sole error text surfaced
// to the embedder.
func Message(c Code) string {
	switch c {
	case OK:
		return "ok"
	case UserAbort:
		return "aborted by user"
	case SyntaxError:
		return "syntax error"
	case ElementNotFound:
		return "element not found"
	case Timeout:
		return "timed out"
	case FrameError:
		return "frame error"
	case DecryptionBadPassword:
		return "wrong password"
	case DecryptionBadEncoding:
		return "bad encoding"
	case DownloadError:
		return "download error"
	case FileError:
		return "file error"
	case StopwatchAlreadyStarted:
		return "stopwatch already started"
	case StopwatchNotStarted:
		return "stopwatch not started"
	case ScriptError:
		return "script error"
	case DatasourceError:
		return "datasource error"
	case LoopLimit:
		return "loop limit reached"
	case MissingParameter:
		return "missing parameter"
	case InvalidParameter:
		return "invalid parameter"
	default:
		return "unknown error"
	}
}

// Retryable reports whether the retry engine's default classifier should
// treat this code as worth retrying. Mirrors the default isRetryable of
// §4.5: ELEMENT_NOT_FOUND and TIMEOUT are retryable; everything else is not.
func Retryable(c Code) bool {
	return c == ElementNotFound || c == Timeout
}
