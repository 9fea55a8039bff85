// state.go — execution state manager (§4.4): cursor, loop counter,
// extract buffer, error, status lifecycle, timing, snapshots.
// Grounded on the teacher's internal/queries.QueryDispatcher: one struct
// owning a single mutex, plain Go methods rather than an interface, a
// GetSnapshot()-style read-only view for reporting.
package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/vars"
)

// Status is the execution status lifecycle (§4.4).
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusAborted   Status = "aborted"
)

// Snapshot is an immutable point-in-time copy of execution state.
type Snapshot struct {
	Timestamp time.Time
	Line      int
	Loop      int
	Status    Status
	Variables map[string]string
	ErrorCode codes.Code
	Note      string
}

// DefaultMaxSnapshots is the default ring capacity (§3).
const DefaultMaxSnapshots = 100

// Manager owns execution state for one macro run. Not safe to share across
// concurrent runs — each run gets its own Manager (§5: "no handler may hold
// a reference across macro restart").
type Manager struct {
	mu sync.Mutex

	vars *vars.Context

	macroName   string
	currentLine int
	totalLines  int
	maxLoops    int

	extract []string

	errorCode    codes.Code
	errorMessage string

	status Status

	startTime       time.Time
	accumulatedMs   int64

	snapshots *Ring[Snapshot]

	stopwatches *Stopwatches
}

// New creates a state manager for a macro with totalLines lines and a given
// loop cap (maxLoops <= 0 means "no looping", i.e. run once).
func New(macroName string, totalLines, maxLoops, maxSnapshots int) *Manager {
	if maxSnapshots <= 0 {
		maxSnapshots = DefaultMaxSnapshots
	}
	return &Manager{
		vars:        vars.New(),
		macroName:   macroName,
		totalLines:  totalLines,
		maxLoops:    maxLoops,
		status:      StatusIdle,
		snapshots:   NewRing[Snapshot](maxSnapshots),
		stopwatches: NewStopwatches(),
	}
}

// Vars returns the variable context backing this state manager.
func (m *Manager) Vars() *vars.Context { return m.vars }

// ---- cursor ----
//
// CurrentLine/TotalLines are a 0-based index into ParsedMacro.Commands and
// a count of commands, NOT the spec's literal 1-based source line number
// (§3) — a macro with comments/blank lines has more source lines than
// commands. The human-facing source line is carried separately on each
// command (macro.Command.LineNumber) and surfaces to callers through
// TraceStep.Line and each command context's logger; CurrentLine/TotalLines
// exist purely to drive the dispatch loop's array walk and are serialized
// under the same names for continuity with the wire format (§6), not
// because they equal the macro text's line numbers.

// CurrentLine returns the dispatch cursor: the index of the next command to
// execute (0 before the first command has run).
func (m *Manager) CurrentLine() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLine
}

// SetCurrentLine sets the cursor directly.
func (m *Manager) SetCurrentLine(line int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentLine = line
}

// NextLine advances the cursor by one and returns the new value.
func (m *Manager) NextLine() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentLine++
	return m.currentLine
}

// JumpToLine sets the cursor to an arbitrary command index.
func (m *Manager) JumpToLine(line int) {
	m.SetCurrentLine(line)
}

// IsAtEnd reports whether the cursor has advanced past the last command.
func (m *Manager) IsAtEnd() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLine >= m.totalLines
}

// TotalLines returns the macro's command count.
func (m *Manager) TotalLines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalLines
}

// ---- loop ----

// LoopCounter returns the current loop counter, mirrored in !LOOP (§3).
func (m *Manager) LoopCounter() int { return m.vars.GetLoop() }

// IncrementLoop increments both the internal counter and !LOOP by 1.
func (m *Manager) IncrementLoop() int { return m.vars.IncrementLoop() }

// MaxLoops returns the configured loop cap.
func (m *Manager) MaxLoops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxLoops
}

// IsLoopLimitReached reports whether the just-finished pass was the last one
// MaxLoops allows. LoopCounter is 0-indexed (the first pass runs at 0), so
// MaxLoops passes complete when LoopCounter reaches MaxLoops-1; MaxLoops<=0
// means "no looping" (the first, and only, pass already satisfies the cap).
func (m *Manager) IsLoopLimitReached() bool {
	max := m.MaxLoops()
	if max <= 0 {
		return true
	}
	return m.LoopCounter() >= max-1
}

// ResetForNextLoop resets the cursor to line 1 for the next iteration.
func (m *Manager) ResetForNextLoop() {
	m.SetCurrentLine(0)
}

// ---- extract buffer ----

// AddExtract appends a captured string to the extract buffer.
func (m *Manager) AddExtract(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extract = append(m.extract, s)
	m.vars.SetSystemTrusted("!EXTRACT", strings.Join(m.extract, "[EXTRACT]"))
}

// GetExtractString returns the buffer joined with the "[EXTRACT]" separator.
func (m *Manager) GetExtractString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.extract, "[EXTRACT]")
}

// ClearExtract empties the extract buffer.
func (m *Manager) ClearExtract() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extract = nil
	m.vars.SetSystemTrusted("!EXTRACT", "")
}

// ---- error ----

// SetError records an error code/message and, if code != OK, transitions
// status per the state machine (§4.4).
func (m *Manager) SetError(code codes.Code, message string) {
	m.mu.Lock()
	m.errorCode = code
	m.errorMessage = message
	m.mu.Unlock()
	if code != codes.OK {
		m.transition(StatusError)
	}
}

// ClearError resets the error and, if currently in error status, moves to
// paused (§4.4: error -> paused via clearError()).
func (m *Manager) ClearError() {
	m.mu.Lock()
	wasError := m.status == StatusError
	m.errorCode = codes.OK
	m.errorMessage = ""
	m.mu.Unlock()
	if wasError {
		m.transition(StatusPaused)
	}
}

// HasError reports whether an error is currently set.
func (m *Manager) HasError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorCode != codes.OK
}

// ErrorCode and ErrorMessage return the current error state.
func (m *Manager) ErrorCode() codes.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorCode
}

func (m *Manager) ErrorMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorMessage
}

// ---- status ----

// Status returns the current lifecycle status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// transition applies a status change and, on leaving "running", accumulates
// elapsed time (§4.4 timing rules).
func (m *Manager) transition(next Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusRunning && next != StatusRunning {
		m.accumulatedMs += time.Since(m.startTime).Milliseconds()
	}
	if next == StatusRunning && m.status != StatusRunning {
		m.startTime = time.Now()
	}
	m.status = next
}

// Start transitions idle -> running and captures the start time.
func (m *Manager) Start() {
	m.transition(StatusRunning)
}

// Pause transitions running -> paused.
func (m *Manager) Pause() { m.transition(StatusPaused) }

// Resume transitions paused -> running.
func (m *Manager) Resume() { m.transition(StatusRunning) }

// Complete transitions running|paused -> completed.
func (m *Manager) Complete() { m.transition(StatusCompleted) }

// Abort transitions to aborted and sets USER_ABORT. Sets the error fields
// directly rather than via SetError, which would otherwise re-transition
// status to "error" and clobber the terminal "aborted" state.
func (m *Manager) Abort() {
	m.mu.Lock()
	m.errorCode = codes.UserAbort
	m.errorMessage = codes.Message(codes.UserAbort)
	m.mu.Unlock()
	m.transition(StatusAborted)
}

// CanContinue is true iff status == running && !hasError().
func (m *Manager) CanContinue() bool {
	return m.Status() == StatusRunning && !m.HasError()
}

// IsPaused reports whether the run is currently paused, used by the retry
// engine to suspend its delay countdown rather than burning it (§4.5).
func (m *Manager) IsPaused() bool {
	return m.Status() == StatusPaused
}

// ---- timing ----

// ExecutionTimeMs returns accumulated time, plus time since start if running.
func (m *Manager) ExecutionTimeMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.accumulatedMs
	if m.status == StatusRunning {
		total += time.Since(m.startTime).Milliseconds()
	}
	return total
}

// ExecutionTimeFormatted renders elapsed time as h:m:s, m:s, or s.t (§4.4).
func (m *Manager) ExecutionTimeFormatted() string {
	ms := m.ExecutionTimeMs()
	totalSec := float64(ms) / 1000.0
	h := int(totalSec) / 3600
	rem := int(totalSec) % 3600
	mm := rem / 60
	ss := rem % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%d:%02d:%02d", h, mm, ss)
	case mm > 0:
		return fmt.Sprintf("%d:%02d", mm, ss)
	default:
		return fmt.Sprintf("%.1f", totalSec)
	}
}

// ---- snapshots ----

// CreateSnapshot captures an immutable copy of current state into the ring.
func (m *Manager) CreateSnapshot(note string) Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		Timestamp: time.Now(),
		Line:      m.currentLine,
		Loop:      m.vars.GetLoop(),
		Status:    m.status,
		Variables: m.vars.GetAllVariables(),
		ErrorCode: m.errorCode,
		Note:      note,
	}
	m.mu.Unlock()
	m.snapshots.Add(snap)
	return snap
}

// Snapshots returns every retained snapshot, oldest first.
func (m *Manager) Snapshots() []Snapshot { return m.snapshots.All() }

// ---- serialization ----

// serialized is the versioned JSON wire shape (§4.4/§6). current_line/
// total_lines carry the dispatch cursor described above (a command-array
// index/count), not a literal source line number.
type serialized struct {
	Version          int               `json:"version"`
	CurrentLine      int               `json:"current_line"`
	TotalLines       int               `json:"total_lines"`
	LoopCounter      int               `json:"loop_counter"`
	MaxLoops         int               `json:"max_loops"`
	SystemVariables  map[string]string `json:"system_variables"`
	CustomVariables  map[string]string `json:"custom_variables"`
	ExtractData      []string          `json:"extract_data"`
	ErrorCode        int               `json:"error_code"`
	ErrorMessage     string            `json:"error_message"`
	Status           string            `json:"status"`
	MacroName        string            `json:"macro_name"`
	StartTime        string            `json:"start_time"`
	LastUpdateTime   string            `json:"last_update_time"`
	ExecutionTimeMs  int64             `json:"execution_time_ms"`
}

const serializeVersion = 1

// Serialize produces the versioned JSON record described in §4.4/§6.
func (m *Manager) Serialize() ([]byte, error) {
	m.mu.Lock()
	s := serialized{
		Version:         serializeVersion,
		CurrentLine:     m.currentLine,
		TotalLines:      m.totalLines,
		LoopCounter:     m.vars.GetLoop(),
		MaxLoops:        m.maxLoops,
		SystemVariables: m.vars.GetSystemVariables(),
		CustomVariables: m.vars.GetCustomVariables(),
		ExtractData:     append([]string(nil), m.extract...),
		ErrorCode:       int(m.errorCode),
		ErrorMessage:    m.errorMessage,
		Status:          string(m.status),
		MacroName:       m.macroName,
		StartTime:       m.startTime.UTC().Format(time.RFC3339Nano),
		LastUpdateTime:  time.Now().UTC().Format(time.RFC3339Nano),
		ExecutionTimeMs: m.ExecutionTimeMs(),
	}
	m.mu.Unlock()
	return json.Marshal(s)
}

// Deserialize rebuilds a Manager from a serialized record. Callers choose
// whether to resume (status/cursor are restored as-is).
func Deserialize(data []byte) (*Manager, error) {
	var s serialized
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Version > serializeVersion {
		return nil, fmt.Errorf("state: serialized version %d is newer than supported version %d", s.Version, serializeVersion)
	}
	m := New(s.MacroName, s.TotalLines, s.MaxLoops, DefaultMaxSnapshots)
	m.currentLine = s.CurrentLine
	m.errorCode = codes.Code(s.ErrorCode)
	m.errorMessage = s.ErrorMessage
	m.status = Status(s.Status)
	m.extract = append([]string(nil), s.ExtractData...)
	m.vars.ImportVariables(s.SystemVariables, s.CustomVariables)
	if loopStr, ok := s.SystemVariables["!LOOP"]; ok {
		if n, err := strconv.Atoi(loopStr); err == nil {
			m.vars.SetLoop(n)
		}
	} else {
		m.vars.SetLoop(s.LoopCounter)
	}
	m.accumulatedMs = s.ExecutionTimeMs
	if t, err := time.Parse(time.RFC3339Nano, s.StartTime); err == nil {
		m.startTime = t
	}
	return m, nil
}
