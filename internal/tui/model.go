// Package tui provides the BubbleTea-based status dashboard.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/hushd/internal/config"
	"github.com/jmylchreest/hushd/internal/journal"
	"github.com/jmylchreest/hushd/internal/status"
)

// Mode represents the current UI mode.
type Mode int

const (
	ModeStatus Mode = iota
	ModeSettings
	ModeHistory
)

// stateColors maps monitor states to badge colors.
var stateColors = map[status.State]lipgloss.Color{
	status.StateIdle:      lipgloss.Color("8"),
	status.StateWatching:  lipgloss.Color("12"),
	status.StateCountdown: lipgloss.Color("11"),
	status.StateSettling:  lipgloss.Color("11"),
	status.StatePlaying:   lipgloss.Color("10"),
	status.StateDucked:    lipgloss.Color("13"),
	status.StateReturning: lipgloss.Color("11"),
	status.StateStopped:   lipgloss.Color("9"),
}

// Model is the main dashboard model.
type Model struct {
	store   *config.Store
	journal *journal.Journal

	mode Mode

	spinner  spinner.Model
	viewport viewport.Model

	snapshot status.Snapshot
	events   []journal.Event
	width    int
	height   int
	ready    bool

	keys KeyMap

	// Status change subscription
	statusCh chan status.Snapshot
}

// New creates a new dashboard model. The journal may be nil; the history
// view then stays empty.
func New(reporter *status.Reporter, store *config.Store, j *journal.Journal) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return Model{
		store:    store,
		journal:  j,
		mode:     ModeStatus,
		spinner:  sp,
		keys:     DefaultKeyMap(),
		snapshot: reporter.Current(),
		statusCh: reporter.Subscribe(),
	}
}

// Init initializes the dashboard.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.watchStatus,
	)
}

type snapshotMsg status.Snapshot

// watchStatus waits for the next status change.
func (m Model) watchStatus() tea.Msg {
	s, ok := <-m.statusCh
	if !ok {
		return nil
	}
	return snapshotMsg(s)
}

type historyMsg []journal.Event

// loadHistory fetches recent events from the journal.
func (m Model) loadHistory() tea.Msg {
	if m.journal == nil {
		return historyMsg(nil)
	}
	events, err := m.journal.Load()
	if err != nil {
		return historyMsg(nil)
	}
	return historyMsg(events)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.viewport = viewport.New(msg.Width, msg.Height-4)
		return m, nil

	case snapshotMsg:
		m.snapshot = status.Snapshot(msg)
		return m, m.watchStatus

	case historyMsg:
		m.events = msg
		if m.mode == ModeHistory {
			m.viewport.SetContent(m.renderHistory())
			m.viewport.GotoBottom()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.mode != ModeStatus {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Settings):
		if m.mode == ModeSettings {
			m.mode = ModeStatus
			return m, nil
		}
		m.mode = ModeSettings
		m.viewport.SetContent(m.renderSettings())
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.History):
		if m.mode == ModeHistory {
			m.mode = ModeStatus
			return m, nil
		}
		m.mode = ModeHistory
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, m.loadHistory

	case key.Matches(msg, m.keys.Back):
		m.mode = ModeStatus
		return m, nil
	}

	if m.mode != ModeStatus {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeSettings:
		return m.viewPane("Settings")
	case ModeHistory:
		return m.viewPane("History")
	default:
		return m.viewStatus()
	}
}

func (m Model) viewStatus() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))

	badgeColor, ok := stateColors[m.snapshot.State]
	if !ok {
		badgeColor = lipgloss.Color("7")
	}
	badgeStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(badgeColor)

	messageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	if m.snapshot.Err {
		messageStyle = messageStyle.Foreground(lipgloss.Color("9"))
	}

	s := titleStyle.Render("hushd") + "\n\n"

	indicator := "  "
	if m.snapshot.State == status.StateCountdown || m.snapshot.State == status.StateReturning {
		indicator = m.spinner.View() + " "
	}

	s += indicator + badgeStyle.Render(string(m.snapshot.State)) + "\n"
	s += "  " + messageStyle.Render(m.snapshot.Message) + "\n"
	if !m.snapshot.At.IsZero() {
		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		s += "  " + labelStyle.Render("since "+m.snapshot.At.Format(time.Kitchen)) + "\n"
	}

	s += "\n" + m.keybindBar()
	return s
}

func (m Model) viewPane(title string) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1)

	return headerStyle.Render(title) + "\n" + m.viewport.View() + "\n" + m.keybindBar()
}

func (m Model) renderSettings() string {
	settings := m.store.Snapshot()
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "failed to render settings: " + err.Error()
	}
	return string(data)
}

func (m Model) renderHistory() string {
	if len(m.events) == 0 {
		return "No events recorded yet."
	}

	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	kindStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	var s string
	for _, event := range m.events {
		s += fmt.Sprintf("%s %s %s\n",
			timeStyle.Render(event.At.Local().Format("15:04:05")),
			kindStyle.Render(fmt.Sprintf("%-10s", event.Kind)),
			event.Detail)
	}
	return s
}

func (m Model) keybindBar() string {
	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	return barStyle.Render("s settings · h history · esc back · q quit")
}
