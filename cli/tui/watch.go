package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// watchInterval is the event-stream poll cadence. The stream is an
// append-only file, so polling it is cheap.
const watchInterval = time.Second

// maxVisibleEvents caps the event pane.
const maxVisibleEvents = 20

// WatchParams identifies the run to watch.
type WatchParams struct {
	// Root is the orchestration root holding runs/.
	Root string
	// RunID is the run whose stream to follow.
	RunID string
}

// WatchModel is a Bubble Tea model following one run's event stream until
// the run finalizes.
type WatchModel struct {
	ledger *runledger.Ledger
	runID  string

	meta   *types.RunMeta
	events []types.Event
	err    error

	width    int
	height   int
	quitting bool
}

// NewWatchModel creates a watch model for one run.
func NewWatchModel(params WatchParams) WatchModel {
	return WatchModel{
		ledger: runledger.New(params.Root),
		runID:  params.RunID,
	}
}

type tickMsg time.Time

type refreshMsg struct {
	meta   *types.RunMeta
	events []types.Event
	err    error
}

func tick() tea.Cmd {
	return tea.Tick(watchInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m WatchModel) refresh() tea.Msg {
	meta, err := m.ledger.Load(m.runID)
	if err != nil {
		return refreshMsg{err: err}
	}
	events, err := runledger.ReadEvents(meta.EventsPath)
	if err != nil {
		return refreshMsg{meta: meta, err: err}
	}
	return refreshMsg{meta: meta, events: events}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, tick())
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}

	case refreshMsg:
		m.meta = msg.meta
		if msg.events != nil {
			m.events = msg.events
		}
		m.err = msg.err
		return m, nil

	case tickMsg:
		// Keep ticking after finalization; the viewer decides when to
		// leave.
		return m, tea.Batch(m.refresh, tick())
	}

	return m, nil
}

// View implements tea.Model.
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run " + m.runID))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("error: %v", m.err)))
		b.WriteString("\n")
	}

	if m.meta != nil {
		b.WriteString(m.renderMeta())
		b.WriteString("\n")
	}
	b.WriteString(m.renderEvents())

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

func (m WatchModel) renderMeta() string {
	var b strings.Builder
	rows := [][]string{
		{"Subsystem", m.meta.Subsystem},
		{"Phase", m.meta.Phase},
		{"Status", string(m.meta.Status)},
		{"Started At", m.meta.StartedAt},
	}
	if m.meta.ParentRunID != nil {
		rows = append(rows, []string{"Parent Run", *m.meta.ParentRunID})
	}
	if m.meta.FinishedAt != nil {
		rows = append(rows, []string{"Finished At", *m.meta.FinishedAt})
	}
	if runledger.Orphaned(m.meta) {
		rows = append(rows, []string{"Orphaned", "yes (owner process is gone)"})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		if row[0] == "Status" {
			value = StateStyle(value).Render(value)
		} else if row[0] == "Orphaned" {
			value = ErrorStyle.Render(value)
		} else {
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}
	return b.String()
}

func (m WatchModel) renderEvents() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Events"))
	b.WriteString("\n")

	if len(m.events) == 0 {
		b.WriteString(HelpStyle.Render("(no events yet)"))
		b.WriteString("\n")
		return b.String()
	}

	events := m.events
	if len(events) > maxVisibleEvents {
		b.WriteString(HelpStyle.Render(fmt.Sprintf("… %d earlier events\n", len(events)-maxVisibleEvents)))
		events = events[len(events)-maxVisibleEvents:]
	}
	for _, event := range events {
		line := fmt.Sprintf("%4d  %s  %s", event.Seq, event.Ts, event.Type)
		switch event.Type {
		case types.EventGuardBlocked, types.EventBudgetDenied:
			line = ErrorStyle.Render(line)
		case types.EventRunFinalized:
			line = SuccessStyle.Render(line)
		default:
			line = ValueStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunWatch runs the watch TUI for one run.
func RunWatch(params WatchParams) error {
	model := NewWatchModel(params)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderWatchStatic renders the current watch view once without the full
// TUI loop (for fallback and tests).
func RenderWatchStatic(params WatchParams) string {
	model := NewWatchModel(params)
	if msg, ok := model.refresh().(refreshMsg); ok {
		model.meta = msg.meta
		model.events = msg.events
		model.err = msg.err
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
