package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/25smoking/chanwatch/internal/scanner"
	"github.com/25smoking/chanwatch/internal/topology"
)

// ANSI 颜色代码
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
)

// 图标
const (
	IconAdded   = "+"
	IconRemoved = "-"
	IconStale   = "~"
	IconOK      = "✓"
	IconError   = "✗"
	IconPause   = "‖"
)

// Console prints snapshots and diffs for the plain watch mode.
type Console struct {
	out     io.Writer
	color   bool
	started time.Time
}

func NewConsole(out io.Writer, color bool) *Console {
	return &Console{out: out, color: color, started: time.Now()}
}

func (c *Console) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ColorReset
}

func (c *Console) PrintBanner(source string) {
	fmt.Fprintln(c.out, c.paint(ColorCyan+ColorBold, "chanwatch")+c.paint(ColorDim, " · watching "+source))
}

func (c *Console) PrintSection(title string) {
	line := strings.Repeat("─", 65)
	fmt.Fprintln(c.out, c.paint(ColorBlue, "┌"+line+"┐"))
	fmt.Fprintf(c.out, "%s %-63s %s\n", c.paint(ColorBlue, "│"), c.paint(ColorBold+ColorWhite, title), c.paint(ColorBlue, "│"))
	fmt.Fprintln(c.out, c.paint(ColorBlue, "└"+line+"┘"))
}

// PrintSnapshot lists every entity with its ports, then every connection.
func (c *Console) PrintSnapshot(s *topology.Snapshot) {
	entities, conns := s.Len()
	c.PrintSection(fmt.Sprintf("snapshot #%d  %d entities  %d connections", s.Sequence, entities, conns))

	for _, name := range s.EntityNames() {
		e := s.Entities[name]
		label := c.paint(ColorCyan, name)
		if e.State == topology.Stale {
			label = c.paint(ColorDim, fmt.Sprintf("%s %s (missed %d)", IconStale, name, e.Misses))
		}
		fmt.Fprintln(c.out, label)
		for _, pn := range e.PortNames() {
			p := e.Ports[pn]
			fmt.Fprintf(c.out, "    %-28s %-6s %s\n", p.Name, p.Protocol, c.paint(ColorDim, string(p.Direction)))
		}
	}

	if conns > 0 {
		fmt.Fprintln(c.out)
	}
	for _, conn := range s.Connections {
		arrow := "──▶"
		if !conn.Live {
			arrow = c.paint(ColorDim, "╌╌▶")
		}
		fmt.Fprintf(c.out, "  %s %s %s\n", conn.Source, arrow, conn.Destination)
	}
}

// PrintDiff prints one line per change. Nothing is printed for an empty diff.
func (c *Console) PrintDiff(seq uint64, d topology.Diff) {
	if !d.Changed {
		return
	}
	stamp := c.paint(ColorDim, fmt.Sprintf("[%s #%d]", time.Now().Format("15:04:05"), seq))
	for _, name := range d.AddedEntities {
		fmt.Fprintf(c.out, "%s %s entity %s\n", stamp, c.paint(ColorGreen, IconAdded), name)
	}
	for _, name := range d.RemovedEntities {
		fmt.Fprintf(c.out, "%s %s entity %s\n", stamp, c.paint(ColorRed, IconRemoved), name)
	}
	for _, conn := range d.AddedConnections {
		fmt.Fprintf(c.out, "%s %s %s -> %s\n", stamp, c.paint(ColorGreen, IconAdded), conn.Source, conn.Destination)
	}
	for _, conn := range d.RemovedConnections {
		fmt.Fprintf(c.out, "%s %s %s -> %s\n", stamp, c.paint(ColorRed, IconRemoved), conn.Source, conn.Destination)
	}
}

// StatusLine renders scanner status on one line.
func StatusLine(st scanner.Status) string {
	icon := IconOK
	switch {
	case st.Paused:
		icon = IconPause
	case st.ConsecutiveFailures > 0:
		icon = IconError
	}

	line := fmt.Sprintf("%s %s  interval %s  scans %d  commits %d  changes %d",
		icon, st.State, st.Interval, st.Scans, st.Commits, st.Changes)
	if st.ConsecutiveFailures > 0 {
		line += fmt.Sprintf("  failures %d  retry in %s", st.ConsecutiveFailures, st.NextSleep)
	}
	if st.LastError != nil {
		line += "  last error: " + st.LastError.Error()
	}
	return line
}

func (c *Console) PrintStatus(st scanner.Status) {
	color := ColorGreen
	if st.ConsecutiveFailures > 0 {
		color = ColorYellow
	}
	fmt.Fprintln(c.out, c.paint(color, StatusLine(st)))
}

func (c *Console) PrintSummary(st scanner.Status) {
	c.PrintSection("summary")
	fmt.Fprintf(c.out, "  started:  %s\n", c.started.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(c.out, "  elapsed:  %.2fs\n", time.Since(c.started).Seconds())
	fmt.Fprintf(c.out, "  scans:    %d\n", st.Scans)
	fmt.Fprintf(c.out, "  changes:  %d\n", st.Changes)
}
