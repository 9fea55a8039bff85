// obslog.go — structured logging funnel for the macro engine.
// Every handler's ctx.log(level, message) call and every retry/dispatch
// event passes through here. Wraps zerolog the way the teacher pack wraps
// its own structured loggers: one shared logger, fields attached per call
// site rather than via global mutable state.
package obslog

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level mirrors the handful of levels the engine actually emits.
type Level string

const (
	Debug Level = "debug"
	Info  Level = "info"
	Warn  Level = "warn"
	Error Level = "error"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Init configures the package logger. Safe to call once; later calls are
// ignored so tests and the CLI can both call it without racing. When json is
// false, output goes through zerolog.ConsoleWriter for human-readable local
// runs; the CLI's --log-json flag (or config's log.json) switches to raw
// JSON lines for log aggregation.
func Init(w io.Writer, level string, json bool) {
	once.Do(func() {
		if w == nil {
			w = os.Stderr
		}
		lvl, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)
		out := w
		if !json {
			out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
		}
		logger = zerolog.New(out).With().Timestamp().Logger()
	})
}

// L returns the shared logger, initializing a sane default if Init was
// never called (e.g. in unit tests that don't care about sinks).
func L() zerolog.Logger {
	Init(os.Stderr, "info", false)
	return logger
}

// Macro returns a logger scoped to a macro run, with macro/line/loop fields
// pre-attached — the pattern the teacher's query dispatcher uses to tag
// every log line with its owning correlation ID.
func Macro(name string, line, loop int) zerolog.Logger {
	return L().With().
		Str("macro", name).
		Int("line", line).
		Int("loop", loop).
		Logger()
}

// Component returns a logger scoped to a non-macro subsystem (watch, tui,
// httpstatus), tagging every line with which component emitted it.
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}

// Emit writes one log event at the given level with a message, used by
// ctx.log(level, message) handler calls (§4.3).
func Emit(lg zerolog.Logger, level Level, message string) {
	switch level {
	case Debug:
		lg.Debug().Msg(message)
	case Warn:
		lg.Warn().Msg(message)
	case Error:
		lg.Error().Msg(message)
	default:
		lg.Info().Msg(message)
	}
}
