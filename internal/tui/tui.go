// tui.go — a bubbletea program implementing bridge.FlowControlUI, grounded
// on the teacher pack's jeranaias-rigrun chat/permission overlay pattern
// (internal/ui/chat/model.go, internal/ui/components/permission.go): a
// request carries its own response channel, the bubbletea Update loop
// resolves it from a keypress, and the blocking FlowControlUI method just
// waits on that channel. Styled with lipgloss the same way the teacher's
// components package themes its boxes.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brennhill/macrorun/internal/obslog"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	boxStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// statusMsg carries a ShowStatus update into the Update loop.
type statusMsg struct {
	line, loop int
	elapsed    time.Duration
}

// pauseRequestMsg asks the model to show a pause overlay and waits for the
// operator to resume or abort.
type pauseRequestMsg struct {
	reason  string
	respond chan pauseResult
}

type pauseResult struct {
	resume bool
	err    error
}

// promptRequestMsg asks the model to collect one line of operator input.
type promptRequestMsg struct {
	message string
	def     string
	respond chan promptResult
}

type promptResult struct {
	value string
	err   error
}

// alertRequestMsg asks the model to show a dismiss-only message (PROMPT with
// no VAR, §4.6). Unlike promptRequestMsg it captures nothing, just blocks
// until acknowledged.
type alertRequestMsg struct {
	title   string
	message string
	respond chan struct{}
}

type model struct {
	line, loop int
	elapsed    time.Duration

	pauseActive bool
	pauseReason string
	pauseResp   chan pauseResult

	promptActive bool
	promptMsg    string
	promptInput  textinput.Model
	promptResp   chan promptResult

	alertActive bool
	alertTitle  string
	alertMsg    string
	alertResp   chan struct{}

	width, height int
}

func newModel() model {
	ti := textinput.New()
	ti.Prompt = "> "
	return model{promptInput: ti}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case statusMsg:
		m.line, m.loop, m.elapsed = msg.line, msg.loop, msg.elapsed
		return m, nil

	case pauseRequestMsg:
		m.pauseActive = true
		m.pauseReason = msg.reason
		m.pauseResp = msg.respond
		return m, nil

	case promptRequestMsg:
		m.promptActive = true
		m.promptMsg = msg.message
		m.promptInput.SetValue(msg.def)
		m.promptInput.Focus()
		m.promptResp = msg.respond
		return m, textinput.Blink

	case alertRequestMsg:
		m.alertActive = true
		m.alertTitle = msg.title
		m.alertMsg = msg.message
		m.alertResp = msg.respond
		return m, nil

	case tea.KeyMsg:
		switch {
		case m.pauseActive:
			return m.updatePause(msg)
		case m.promptActive:
			return m.updatePrompt(msg)
		case m.alertActive:
			return m.updateAlert(msg)
		case msg.String() == "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) updateAlert(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc", " ":
		close(m.alertResp)
		m.alertActive = false
		m.alertResp = nil
	}
	return m, nil
}

func (m model) updatePause(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "r", "enter":
		m.pauseResp <- pauseResult{resume: true}
	case "a", "esc":
		m.pauseResp <- pauseResult{resume: false}
	default:
		return m, nil
	}
	m.pauseActive = false
	m.pauseResp = nil
	return m, nil
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.promptResp <- promptResult{value: m.promptInput.Value()}
		m.promptActive = false
		m.promptResp = nil
		m.promptInput.Blur()
		return m, nil
	case "esc":
		m.promptResp <- promptResult{err: context.Canceled}
		m.promptActive = false
		m.promptResp = nil
		m.promptInput.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.promptInput, cmd = m.promptInput.Update(msg)
	return m, cmd
}

func (m model) View() string {
	status := statusStyle.Render(fmt.Sprintf("line %d  loop %d  %s", m.line, m.loop, m.elapsed.Round(time.Second)))

	switch {
	case m.pauseActive:
		body := titleStyle.Render("Paused") + "\n\n" + m.pauseReason + "\n\n" +
			hintStyle.Render("r=resume  a=abort")
		return status + "\n" + boxStyle.Render(body)
	case m.promptActive:
		body := titleStyle.Render("Prompt") + "\n\n" + m.promptMsg + "\n\n" +
			m.promptInput.View() + "\n\n" + hintStyle.Render("enter=submit  esc=cancel")
		return status + "\n" + boxStyle.Render(body)
	case m.alertActive:
		title := m.alertTitle
		if title == "" {
			title = "Alert"
		}
		body := titleStyle.Render(title) + "\n\n" + m.alertMsg + "\n\n" +
			hintStyle.Render("enter=dismiss")
		return status + "\n" + boxStyle.Render(body)
	default:
		return status
	}
}

// FlowUI is the concrete bridge.FlowControlUI backed by a running bubbletea
// program. Zero value is not usable; construct with New.
type FlowUI struct {
	program *tea.Program
	mu      sync.Mutex
	done    chan struct{}
}

// New starts the bubbletea program in the background and returns a FlowUI
// bound to it. Call Stop to shut the program down.
func New() *FlowUI {
	p := tea.NewProgram(newModel())
	f := &FlowUI{program: p, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if _, err := p.Run(); err != nil {
			lg := obslog.Component("tui")
			lg.Warn().Err(err).Msg("tui program exited")
		}
	}()
	return f
}

// Stop quits the bubbletea program and waits for it to exit.
func (f *FlowUI) Stop() {
	f.program.Quit()
	<-f.done
}

func (f *FlowUI) Pause(ctx context.Context, reason string) (bool, error) {
	respond := make(chan pauseResult, 1)
	f.program.Send(pauseRequestMsg{reason: reason, respond: respond})
	select {
	case r := <-respond:
		return r.resume, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (f *FlowUI) Prompt(ctx context.Context, message string, defaultValue string) (string, error) {
	respond := make(chan promptResult, 1)
	f.program.Send(promptRequestMsg{message: message, def: defaultValue, respond: respond})
	select {
	case r := <-respond:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *FlowUI) Alert(ctx context.Context, message string, title string) error {
	respond := make(chan struct{})
	f.program.Send(alertRequestMsg{title: title, message: message, respond: respond})
	select {
	case <-respond:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FlowUI) ShowStatus(line int, loop int, elapsed time.Duration) {
	f.program.Send(statusMsg{line: line, loop: loop, elapsed: elapsed})
}
