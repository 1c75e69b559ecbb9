package tui

import (
	"time"

	"github.com/25smoking/chanwatch/internal/command"
	"github.com/25smoking/chanwatch/internal/scanner"
	"github.com/25smoking/chanwatch/internal/topology"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Source is the read side of the topology model.
type Source interface {
	Current() *topology.Snapshot
}

// Latch is the consumer side of the update coordinator.
type Latch interface {
	ConsumeIfDirty() bool
}

type TickMsg time.Time

// Model renders the committed topology. It only rebuilds its rows when the
// latch reports a pending update.
type Model struct {
	source     Source
	latch      Latch
	dispatcher *command.Dispatcher
	display    *command.Display
	status     func() scanner.Status
	tick       time.Duration
	sourceName string

	table    table.Model
	snapshot *topology.Snapshot
	rebuilds int
	notice   string
}

func New(source Source, latch Latch, dispatcher *command.Dispatcher, display *command.Display,
	status func() scanner.Status, tick time.Duration, sourceName string) Model {
	columns := []table.Column{
		{Title: "Entity", Width: 28},
		{Title: "State", Width: 10},
		{Title: "Port", Width: 26},
		{Title: "Dir", Width: 13},
		{Title: "Peers", Width: 40},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	if status == nil {
		status = func() scanner.Status { return scanner.Status{} }
	}
	if display == nil {
		display = &command.Display{}
	}

	return Model{
		source:     source,
		latch:      latch,
		dispatcher: dispatcher,
		display:    display,
		status:     status,
		tick:       tick,
		sourceName: sourceName,
		table:      t,
		snapshot:   topology.Empty(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Rebuilds reports how many times the rows were rebuilt from the model.
func (m Model) Rebuilds() int {
	return m.rebuilds
}

func (m Model) Snapshot() *topology.Snapshot {
	return m.snapshot
}
