// vars.go — variable context: system + user variable storage, {{name}}
// expansion, and the !NOW[:fmt] lazy pseudo-variable.
// Modeled on the teacher pack's habit of a small mutex-guarded map type with
// explicit Get/Set contracts (internal/queries.QueryDispatcher) rather than
// a bare map passed around by value.
package vars

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// varRefPattern matches {{name}} references; name is anything but '}'.
var varRefPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Ref is a single {{...}} occurrence found while scanning raw text.
type Ref struct {
	Original string // includes the {{ }}
	Name     string
	IsSystem bool
	Start    int
	End      int
}

// reservedSystemNames is the closed set of system variables the context
// itself recognizes for Set(). Handlers may bypass this via state's own
// setter (§4.2) — that layer trusts its inputs.
var reservedSystemNames = buildReserved()

func buildReserved() map[string]bool {
	m := map[string]bool{
		"!LOOP": true, "!DATASOURCE": true, "!DATASOURCE_LINE": true,
		"!DATASOURCE_COLUMNS": true, "!EXTRACT": true, "!ENCRYPTION": true,
		"!NOW": true, "!TIMEOUT": true, "!TIMEOUT_STEP": true,
		"!TIMEOUT_PAGE": true, "!TIMEOUT_TAG": true, "!ERRORIGNORE": true,
		"!ERRORLOOP": true, "!SINGLESTEP": true, "!URLSTART": true,
		"!URLCURRENT": true, "!FILESTOPWATCH": true, "!CLIPBOARD": true,
		"!DOWNLOADPDF": true,
	}
	for i := 0; i <= 9; i++ {
		m[fmt.Sprintf("!VAR%d", i)] = true
	}
	for i := 1; i <= 10; i++ {
		m[fmt.Sprintf("!COL%d", i)] = true
	}
	return m
}

// isReservedPrefix reports whether name is a recognized system variable or
// begins with a recognized family prefix (!FOLDER_* is open-ended).
func isReservedPrefix(upper string) bool {
	if reservedSystemNames[upper] {
		return true
	}
	return strings.HasPrefix(upper, "!FOLDER_")
}

// SetResult reports the outcome of a Set call.
type SetResult struct {
	OK   bool
	Prev string
	New  string
}

// Context holds system and user variables. Zero value is not usable; use New.
type Context struct {
	mu     sync.RWMutex
	system map[string]string // keyed upper-case, includes leading '!'
	user   map[string]string // keyed upper-case for lookup; original case tracked separately
	// userCase preserves the original-case name for each user variable so
	// GetCustomVariables can report names the way they were set.
	userCase map[string]string
	loop     int
}

// New returns an empty variable context with loop counter at 0.
func New() *Context {
	return &Context{
		system:   make(map[string]string),
		user:     make(map[string]string),
		userCase: make(map[string]string),
	}
}

func upper(name string) string { return strings.ToUpper(strings.TrimSpace(name)) }

// Get returns a variable's string value, or ("", false) if unset. !NOW[:fmt]
// is handled lazily here rather than stored.
func (c *Context) Get(name string) (string, bool) {
	u := upper(name)
	if strings.HasPrefix(u, "!NOW") {
		return c.expandNow(u), true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if strings.HasPrefix(u, "!") {
		if u == "!LOOP" {
			return strconv.Itoa(c.loop), true
		}
		v, ok := c.system[u]
		return v, ok
	}
	v, ok := c.user[u]
	return v, ok
}

// Set stores a variable. System names are validated against the reserved
// set (§4.2); unknown !-prefixed names are rejected. User names preserve
// original case but are looked up case-insensitively.
func (c *Context) Set(name, value string) SetResult {
	u := upper(name)
	if u == "!LOOP" {
		prev := strconv.Itoa(c.loop)
		n, err := strconv.Atoi(value)
		if err != nil {
			return SetResult{OK: false, Prev: prev}
		}
		c.mu.Lock()
		c.loop = n
		c.mu.Unlock()
		return SetResult{OK: true, Prev: prev, New: value}
	}
	if strings.HasPrefix(u, "!") {
		if !isReservedPrefix(u) {
			return SetResult{OK: false}
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		prev := c.system[u]
		c.system[u] = value
		return SetResult{OK: true, Prev: prev, New: value}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.user[u]
	c.user[u] = value
	c.userCase[u] = name
	return SetResult{OK: true, Prev: prev, New: value}
}

// SetSystemTrusted stores a system variable without the reserved-name check,
// for use by the state manager and handlers that own specific system
// variables outright (e.g. !STOPWATCHTIME, !CMDLINE_EXITCODE).
func (c *Context) SetSystemTrusted(name, value string) {
	u := upper(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system[u] = value
}

// GetLoop returns the current loop counter.
func (c *Context) GetLoop() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loop
}

// SetLoop sets the loop counter directly.
func (c *Context) SetLoop(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = n
}

// IncrementLoop increments the loop counter by 1 and returns the new value.
func (c *Context) IncrementLoop() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop++
	return c.loop
}

// GetAllVariables returns a snapshot of all system+user variables, keyed by
// their canonical display name.
func (c *Context) GetAllVariables() map[string]string {
	out := c.GetSystemVariables()
	for k, v := range c.GetCustomVariables() {
		out[k] = v
	}
	return out
}

// GetSystemVariables returns a snapshot of system variables (including the
// live !LOOP value), keyed by upper-case name.
func (c *Context) GetSystemVariables() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.system)+1)
	for k, v := range c.system {
		out[k] = v
	}
	out["!LOOP"] = strconv.Itoa(c.loop)
	return out
}

// GetCustomVariables returns a snapshot of user variables keyed by their
// original-case name.
func (c *Context) GetCustomVariables() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.user))
	for k, v := range c.user {
		name := c.userCase[k]
		if name == "" {
			name = k
		}
		out[name] = v
	}
	return out
}

// ImportVariables bulk-loads system and user variables, e.g. from a
// deserialized state snapshot (§4.4). Bypasses the reserved-name check since
// the source is trusted (our own serializer).
func (c *Context) ImportVariables(system, user map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range system {
		u := upper(k)
		if u == "!LOOP" {
			if n, err := strconv.Atoi(v); err == nil {
				c.loop = n
			}
			continue
		}
		c.system[u] = v
	}
	for k, v := range user {
		u := upper(k)
		c.user[u] = v
		c.userCase[u] = k
	}
}

// Reset clears all variables and the loop counter.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = make(map[string]string)
	c.user = make(map[string]string)
	c.userCase = make(map[string]string)
	c.loop = 0
}

// ExtractRefs scans raw text for {{name}} occurrences, deduped by name,
// preserving first-seen order. Used by the parser (§4.1) so the executor
// never re-scans.
func ExtractRefs(raw string) []Ref {
	matches := varRefPattern.FindAllStringSubmatchIndex(raw, -1)
	seen := make(map[string]bool, len(matches))
	refs := make([]Ref, 0, len(matches))
	for _, m := range matches {
		start, end := m[0], m[1]
		nameStart, nameEnd := m[2], m[3]
		name := raw[nameStart:nameEnd]
		if seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, Ref{
			Original: raw[start:end],
			Name:     name,
			IsSystem: strings.HasPrefix(name, "!"),
			Start:    start,
			End:      end,
		})
	}
	return refs
}

// ExpandResult is the outcome of a single-pass expansion.
type ExpandResult struct {
	Expanded  string
	Variables []Ref
}

// Expand substitutes every {{name}} occurrence in text with the variable's
// string form. Unknown names expand to empty string (not an error).
// Expansion is single-pass: substituted values are never re-scanned.
func (c *Context) Expand(text string) ExpandResult {
	refs := ExtractRefs(text)
	if len(refs) == 0 {
		return ExpandResult{Expanded: text}
	}
	var b strings.Builder
	last := 0
	// Re-scan in source order (ExtractRefs is deduped, not ordered by
	// position after dedup) so replacement happens left-to-right correctly.
	all := varRefPattern.FindAllStringSubmatchIndex(text, -1)
	for _, m := range all {
		start, end := m[0], m[1]
		name := text[m[2]:m[3]]
		b.WriteString(text[last:start])
		b.WriteString(c.valueFor(name))
		last = end
	}
	b.WriteString(text[last:])
	return ExpandResult{Expanded: b.String(), Variables: refs}
}

func (c *Context) valueFor(name string) string {
	v, ok := c.Get(name)
	if !ok {
		return ""
	}
	return v
}

// expandNow formats the current local time per the !NOW[:fmt] token grammar:
// yyyy, mm, dd, hh, nn (minute), ss. With no :fmt suffix, a default
// yyyy-mm-dd hh:nn:ss layout is used.
func (c *Context) expandNow(upperName string) string {
	now := time.Now()
	if !strings.Contains(upperName, ":") {
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
			now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second())
	}
	parts := strings.SplitN(upperName, ":", 2)
	format := parts[1]
	return formatNow(now, format)
}

// formatNow rewrites each recognized token in format (case-insensitive) with
// the corresponding zero-padded component of t.
func formatNow(t time.Time, format string) string {
	replacer := strings.NewReplacer(
		"yyyy", fmt.Sprintf("%04d", t.Year()),
		"mm", fmt.Sprintf("%02d", int(t.Month())),
		"dd", fmt.Sprintf("%02d", t.Day()),
		"hh", fmt.Sprintf("%02d", t.Hour()),
		"nn", fmt.Sprintf("%02d", t.Minute()),
		"ss", fmt.Sprintf("%02d", t.Second()),
	)
	return replacer.Replace(strings.ToLower(format))
}
