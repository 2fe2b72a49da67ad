// Package tui provides the terminal monitor for squadron executions.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/parkerduff/squadron/internal/orchestrator"
	"github.com/parkerduff/squadron/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true)

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC857")).
			Bold(true)

	blockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96E6A1")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)

// SnapshotProvider supplies execution snapshots for the monitor.
type SnapshotProvider interface {
	Monitor(executionID string) (*orchestrator.Snapshot, error)
}

// eventMsg wraps an orchestrator event for the bubbletea loop.
type eventMsg orchestrator.Event

// tickMsg triggers a snapshot refresh.
type tickMsg time.Time

// Monitor is the bubbletea model showing one execution's progress and the
// orchestrator event stream.
type Monitor struct {
	provider    SnapshotProvider
	events      <-chan orchestrator.Event
	executionID string
	refresh     time.Duration

	snapshot *orchestrator.Snapshot
	snapErr  error
	lines    []string

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	quitting bool
}

// NewMonitor creates a monitor for one execution.
func NewMonitor(provider SnapshotProvider, events <-chan orchestrator.Event, executionID string, refresh time.Duration) *Monitor {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#45B7D1"))

	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}

	return &Monitor{
		provider:    provider,
		events:      events,
		executionID: executionID,
		refresh:     refresh,
		spinner:     sp,
	}
}

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick(), m.waitForEvent())
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := 6
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.refreshViewport()

	case tickMsg:
		snap, err := m.provider.Monitor(m.executionID)
		m.snapshot, m.snapErr = snap, err
		if snap != nil && snap.Progress.IsTerminal {
			// One final paint, then exit on the next key or tick.
			return m, m.tick()
		}
		return m, m.tick()

	case eventMsg:
		m.lines = append(m.lines, formatEvent(orchestrator.Event(msg)))
		m.refreshViewport()
		return m, m.waitForEvent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Monitor) View() string {
	if m.quitting {
		return ""
	}

	header := titleStyle.Render("squadron monitor") + dimStyle.Render("  execution "+m.executionID) + "\n\n"

	switch {
	case m.snapErr != nil:
		header += blockedStyle.Render("error: ") + m.snapErr.Error() + "\n\n"
	case m.snapshot == nil:
		header += m.spinner.View() + " loading...\n\n"
	default:
		header += m.renderSnapshot() + "\n"
	}

	body := m.viewport.View()
	footer := footerStyle.Render("q: quit  ↑/↓: scroll events")
	return header + body + "\n" + footer
}

func (m *Monitor) renderSnapshot() string {
	snap := m.snapshot

	var state string
	switch {
	case snap.State == models.StateCompleted:
		state = doneStyle.Render(string(snap.State))
	case snap.State == models.StateFailed, snap.Progress.IsBlocked:
		state = blockedStyle.Render(string(snap.State))
	default:
		state = m.spinner.View() + " " + stateStyle.Render(string(snap.State))
	}

	line := fmt.Sprintf("%s  %s  %d%%", state, dimStyle.Render(snap.Description), snap.Progress.Percent)
	if snap.Error != "" {
		line += "\n" + blockedStyle.Render("error: ") + snap.Error
	}
	line += "\n" + dimStyle.Render(fmt.Sprintf("transitions: %d  elapsed: %s",
		snap.Metrics.TransitionCount, snap.Metrics.TotalDuration.Round(time.Second)))
	return line
}

func (m *Monitor) refreshViewport() {
	if !m.ready {
		return
	}
	content := ""
	for _, line := range m.lines {
		content += line + "\n"
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m *Monitor) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Monitor) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

func formatEvent(e orchestrator.Event) string {
	ts := dimStyle.Render(e.Timestamp.Format("15:04:05"))
	return fmt.Sprintf("%s %s %s", ts, stateStyle.Render(string(e.Type)), e.Message)
}

// Run starts the monitor and blocks until it exits.
func Run(provider SnapshotProvider, events <-chan orchestrator.Event, executionID string, refresh time.Duration) error {
	p := tea.NewProgram(NewMonitor(provider, events, executionID, refresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
