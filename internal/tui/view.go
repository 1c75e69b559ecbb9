package tui

import (
	"fmt"

	"github.com/25smoking/chanwatch/internal/command"
	"github.com/25smoking/chanwatch/internal/report"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

// frameStyle returns the body style for the current background.
func frameStyle(bg command.Background) lipgloss.Style {
	base := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Margin(0, 1)

	switch bg {
	case command.White:
		return base.
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(lipgloss.Color("#FFFFFF")).
			BorderForeground(lipgloss.Color("#888888"))
	case command.InvertedGradient:
		return base.
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(lipgloss.Color("#C9B8FF")).
			BorderForeground(lipgloss.Color("#3C1F8C"))
	default:
		return base.
			Foreground(lipgloss.Color("#FFF7DB")).
			Background(lipgloss.Color("#2A1B4D")).
			BorderForeground(lipgloss.Color("#7D56F4"))
	}
}

func (m Model) View() string {
	entities, conns := m.snapshot.Len()
	header := fmt.Sprintf("chanwatch - %s  #%d  %d entities  %d connections",
		m.sourceName, m.snapshot.Sequence, entities, conns)

	body := frameStyle(m.display.Background).Render(m.table.View())
	status := report.StatusLine(m.status())

	view := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(header),
		body,
		status,
	)
	if m.notice != "" {
		view += "\n" + noticeStyle.Render(m.notice)
	}
	return view + "\n" + helpStyle.Render("r repaint · i invert · w white · p pause · c resume · s scan now · +/- interval · q quit")
}
