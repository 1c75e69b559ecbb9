package topology

import (
	"fmt"
	"io"
	"strings"
)

// WriteDOT writes the snapshot in Graphviz DOT format. Entities become
// clusters, ports become nodes inside them, connections become edges.
func WriteDOT(w io.Writer, s *Snapshot) error {
	if _, err := fmt.Fprintln(w, "digraph Topology {"); err != nil {
		return err
	}

	// Default styles
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box, style=filled, fontname=\"Arial\"];")
	fmt.Fprintln(w, "  edge [fontname=\"Arial\", fontsize=10];")

	for i, name := range s.EntityNames() {
		e := s.Entities[name]

		color := "#e1f5fe" // Light Blue
		if e.State == Stale {
			color = "#eeeeee"
		}

		fmt.Fprintf(w, "  subgraph \"cluster_%d\" {\n", i)
		fmt.Fprintf(w, "    label=\"%s\";\n", escapeDOT(name))
		fmt.Fprintf(w, "    style=filled; fillcolor=\"%s\";\n", color)
		for _, pn := range e.PortNames() {
			p := e.Ports[pn]
			shape := "box"
			switch p.Direction {
			case Input:
				shape = "invhouse"
			case Output:
				shape = "house"
			case Bidirectional:
				shape = "ellipse"
			}
			label := p.Name
			if p.Protocol != "" {
				label += "\n" + p.Protocol
			}
			fmt.Fprintf(w, "    \"%s\" [label=\"%s\", fillcolor=\"white\", shape=\"%s\"];\n",
				escapeDOT(string(p.ID)), escapeDOT(label), shape)
		}
		fmt.Fprintln(w, "  }")
	}

	for _, c := range s.Connections {
		style := "solid"
		if !c.Live {
			style = "dashed"
		}
		fmt.Fprintf(w, "  \"%s\" -> \"%s\" [style=%s];\n",
			escapeDOT(string(c.Source)), escapeDOT(string(c.Destination)), style)
	}

	if _, err := fmt.Fprintln(w, "}"); err != nil {
		return err
	}
	return nil
}

func escapeDOT(s string) string {
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return strings.ReplaceAll(s, "\n", "\\n")
}
