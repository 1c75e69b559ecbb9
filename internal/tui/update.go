package tui

import (
	"sort"
	"strings"

	"github.com/25smoking/chanwatch/internal/command"
	"github.com/25smoking/chanwatch/internal/topology"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

var keyCommands = map[string]command.ID{
	"r": command.Repaint,
	"i": command.InvertBackground,
	"w": command.WhiteBackground,
	"p": command.PauseScanning,
	"c": command.ResumeScanning,
	"s": command.ScanNow,
	"+": command.ScanFaster,
	"-": command.ScanSlower,
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		if key == "q" || key == "ctrl+c" {
			return m, tea.Quit
		}
		if id, ok := keyCommands[key]; ok && m.dispatcher != nil {
			m.notice = ""
			if err := m.dispatcher.Invoke(id); err != nil {
				m.notice = err.Error()
			}
			return m, nil
		}

	case TickMsg:
		if m.latch.ConsumeIfDirty() {
			m.snapshot = m.source.Current()
			m.table.SetRows(rows(m.snapshot))
			m.rebuilds++
		}
		return m, m.tickCmd()
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// rows lists one row per port. Entities without ports get a single row.
func rows(s *topology.Snapshot) []table.Row {
	peers := make(map[topology.PortID][]string)
	for _, c := range s.Connections {
		peers[c.Source] = append(peers[c.Source], "→ "+string(c.Destination))
		peers[c.Destination] = append(peers[c.Destination], "← "+string(c.Source))
	}

	var out []table.Row
	for _, name := range s.EntityNames() {
		e := s.Entities[name]
		state := string(e.State)
		if len(e.Ports) == 0 {
			out = append(out, table.Row{name, state, "", "", ""})
			continue
		}
		for i, pn := range e.PortNames() {
			p := e.Ports[pn]
			label := name
			if i > 0 {
				label = ""
			}
			ps := peers[p.ID]
			sort.Strings(ps)
			out = append(out, table.Row{label, state, p.Name, string(p.Direction), strings.Join(ps, ", ")})
		}
	}
	return out
}
