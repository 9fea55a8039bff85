// watch.go — live-reload of a macro file for `macrorun run --watch`,
// grounded on the teacher pack's jeranaias-rigrun/internal/index FsnotifyWatcher
// (debounced fsnotify.Write/Create handling, graceful Close). Re-parsing a
// macro never interrupts an in-flight run; it only produces a fresh
// ParsedMacro + validation report for the caller to decide what to do with.
package watch

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/brennhill/macrorun/internal/macro"
	"github.com/brennhill/macrorun/internal/obslog"
)

// Report is delivered to the caller every time the watched file settles
// after a change.
type Report struct {
	Macro macro.ParsedMacro
	Err   error
}

// MacroWatcher watches a single macro file and re-parses it on save,
// debouncing rapid successive writes from editors that save in bursts.
type MacroWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	reports  chan Report
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a MacroWatcher for path. Call Start to begin watching.
func New(path string, debounce time.Duration) (*MacroWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &MacroWatcher{
		path:     path,
		debounce: debounce,
		watcher:  fw,
		reports:  make(chan Report, 1),
		log:      obslog.Component("watch"),
	}, nil
}

// Reports returns the channel new ParsedMacro reports arrive on.
func (w *MacroWatcher) Reports() <-chan Report { return w.reports }

// Start begins watching in the background until ctx is done or Close is called.
func (w *MacroWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(ctx)
}

func (w *MacroWatcher) run(ctx context.Context) {
	var pending bool
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = true
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Str("path", w.path).Msg("watch error")

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			w.reload()
		}
	}
}

func (w *MacroWatcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("reload failed")
		select {
		case w.reports <- Report{Err: err}:
		default:
		}
		return
	}
	pm := macro.Parse(string(data), true)
	w.log.Info().Str("path", w.path).Int("errors", len(pm.Errors)).Msg("macro reloaded")
	select {
	case w.reports <- Report{Macro: pm}:
	default:
		// Drop the stale report rather than block; the next save supersedes it.
		<-w.reports
		w.reports <- Report{Macro: pm}
	}
}

// Close stops watching and releases the underlying fsnotify watcher.
func (w *MacroWatcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
