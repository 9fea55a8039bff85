// stopwatch.go — STOPWATCH command state machine and CSV export (§4.6, §6).
// Isolated per Manager (one Stopwatches registry per run) rather than
// process-global, per the REDESIGN FLAG in spec.md §9 ("Stopwatch state as
// process-global... isolate per engine instance").
package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is one completed stopwatch measurement (§3).
type Record struct {
	ID        string
	ElapsedSec float64
	Timestamp time.Time
}

type timer struct {
	running   bool
	startedAt time.Time
}

// Stopwatches tracks named timers and the records they have emitted. The
// Open Question on label-anchor initialization is resolved here: the
// anchor is the first Start() call within a run (spec.md §9).
type Stopwatches struct {
	mu      sync.Mutex
	timers  map[string]*timer
	records []Record
	anchor  time.Time
}

// NewStopwatches creates an empty, per-run stopwatch registry.
func NewStopwatches() *Stopwatches {
	return &Stopwatches{timers: make(map[string]*timer)}
}

// Start begins timing id. Returns false if id is already running (caller
// maps this to error 961).
func (s *Stopwatches) Start(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.anchor.IsZero() {
		s.anchor = now
	}
	t, ok := s.timers[id]
	if !ok {
		t = &timer{}
		s.timers[id] = t
	}
	if t.running {
		return false
	}
	t.running = true
	t.startedAt = now
	return true
}

// Stop ends timing id and appends a record. Returns (elapsedSec, ok); ok is
// false if id was never started (caller maps this to error 962).
func (s *Stopwatches) Stop(id string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok || !t.running {
		return 0, false
	}
	elapsed := time.Since(t.startedAt).Seconds()
	t.running = false
	s.records = append(s.records, Record{ID: strings.ToUpper(id), ElapsedSec: elapsed, Timestamp: time.Now()})
	return elapsed, true
}

// Lap records the elapsed time for a running timer without stopping it.
func (s *Stopwatches) Lap(id string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok || !t.running {
		return 0, false
	}
	elapsed := time.Since(t.startedAt).Seconds()
	s.records = append(s.records, Record{ID: strings.ToUpper(id), ElapsedSec: elapsed, Timestamp: time.Now()})
	return elapsed, true
}

// Read returns the current elapsed time for id without appending a record.
func (s *Stopwatches) Read(id string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok || !t.running {
		return 0, false
	}
	return time.Since(t.startedAt).Seconds(), true
}

// IsRunning reports whether id is currently running.
func (s *Stopwatches) IsRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	return ok && t.running
}

// Records returns a copy of every emitted record, in append (stop/lap) order.
func (s *Stopwatches) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Reset clears all timers and records, e.g. on explicit reset or macro
// restart (§3 lifecycle: "Stopwatch table... cleared at macro start and at
// explicit reset").
func (s *Stopwatches) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = make(map[string]*timer)
	s.records = nil
	s.anchor = time.Time{}
}

// CSV renders the §6 stopwatch export format:
//
//	Date: YYYY/MM/DD  Time: HH:MM, Macro: <name>, Status: <message> (<code>)
//	<blank line>
//	YYYY/MM/DD,HH:MM:SS,<id>,<seconds.fff>
func (s *Stopwatches) CSV(macroName, statusMessage string, statusCode int) string {
	now := time.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s  Time: %s, Macro: %s, Status: %s (%d)\n",
		now.Format("2006/01/02"), now.Format("15:04"), macroName, statusMessage, statusCode)
	b.WriteString("\n")

	records := s.Records()
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	for _, r := range records {
		fmt.Fprintf(&b, "%s,%s,%s,%.3f\n",
			r.Timestamp.Format("2006/01/02"), r.Timestamp.Format("15:04:05"), r.ID, r.ElapsedSec)
	}
	return b.String()
}

// Stopwatches exposes the state manager's per-run stopwatch registry.
func (m *Manager) Stopwatches() *Stopwatches { return m.stopwatches }
