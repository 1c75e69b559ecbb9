package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/25smoking/chanwatch/internal/topology"
)

// PortRow is one port of one entity, flattened for export.
type PortRow struct {
	Entity    string            `json:"entity"`
	State     string            `json:"state"`
	Tags      map[string]string `json:"tags,omitempty"`
	Port      string            `json:"port,omitempty"`
	Direction string            `json:"direction,omitempty"`
	Protocol  string            `json:"protocol,omitempty"`
}

type ConnectionRow struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Live        bool   `json:"live"`
}

type Document struct {
	Sequence    uint64          `json:"sequence"`
	TakenAt     time.Time       `json:"taken_at"`
	Ports       []PortRow       `json:"ports"`
	Connections []ConnectionRow `json:"connections"`
}

// Flatten turns a snapshot into sorted rows. Entities without ports still
// get one row.
func Flatten(s *topology.Snapshot) Document {
	doc := Document{Sequence: s.Sequence, TakenAt: s.TakenAt}
	for _, name := range s.EntityNames() {
		e := s.Entities[name]
		if len(e.Ports) == 0 {
			doc.Ports = append(doc.Ports, PortRow{Entity: name, State: string(e.State), Tags: e.Tags})
			continue
		}
		for _, pn := range e.PortNames() {
			p := e.Ports[pn]
			doc.Ports = append(doc.Ports, PortRow{
				Entity:    name,
				State:     string(e.State),
				Tags:      e.Tags,
				Port:      p.Name,
				Direction: string(p.Direction),
				Protocol:  p.Protocol,
			})
		}
	}
	for _, c := range s.Connections {
		doc.Connections = append(doc.Connections, ConnectionRow{
			Source:      string(c.Source),
			Destination: string(c.Destination),
			Live:        c.Live,
		})
	}
	return doc
}

func WriteJSON(w io.Writer, s *topology.Snapshot) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(Flatten(s))
}

// WriteCSV writes ports first, then connections, in one table.
func WriteCSV(w io.Writer, s *topology.Snapshot) error {
	doc := Flatten(s)
	cw := csv.NewWriter(w)

	// Header
	cw.Write([]string{"Kind", "Entity", "State", "Port", "Direction", "Protocol", "Source", "Destination", "Live"})

	for _, r := range doc.Ports {
		cw.Write([]string{"port", r.Entity, r.State, r.Port, r.Direction, r.Protocol, "", "", ""})
	}
	for _, c := range doc.Connections {
		cw.Write([]string{"connection", "", "", "", "", "", c.Source, c.Destination, fmt.Sprintf("%t", c.Live)})
	}

	cw.Flush()
	return cw.Error()
}

// Save 导出快照 (json, csv, dot, html)
func Save(s *topology.Snapshot, format, filename string) error {
	write, err := writerFor(format)
	if err != nil {
		return err
	}

	if filename == "-" {
		return write(os.Stdout, s)
	}
	filename = OutputPath(filename, format)

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := write(f, s); err != nil {
		return err
	}
	return f.Close()
}

func writerFor(format string) (func(io.Writer, *topology.Snapshot) error, error) {
	switch format {
	case "json":
		return WriteJSON, nil
	case "csv":
		return WriteCSV, nil
	case "dot":
		return topology.WriteDOT, nil
	case "html":
		return WriteHTML, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// OutputPath resolves where Save writes: an empty name or an existing
// directory gets a timestamped file name.
func OutputPath(output, format string) string {
	if output == "" {
		return DefaultFilename(format)
	}
	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		return filepath.Join(output, DefaultFilename(format))
	}
	return output
}

// DefaultFilename returns a timestamped name for format.
func DefaultFilename(format string) string {
	return fmt.Sprintf("chanwatch_snapshot_%s.%s", time.Now().Format("20060102_150405"), format)
}
