package registry

import (
	"context"
	"fmt"
	"os"

	"github.com/25smoking/chanwatch/internal/topology"
	"gopkg.in/yaml.v3"
)

// FileTopology is the on-disk description read by the File client.
type FileTopology struct {
	Entities    []FileEntity     `yaml:"entities"`
	Connections []FileConnection `yaml:"connections"`
}

type FileEntity struct {
	Name  string            `yaml:"name"`
	Tags  map[string]string `yaml:"tags"`
	Ports []FilePort        `yaml:"ports"`
}

type FilePort struct {
	Name      string `yaml:"name"`
	Direction string `yaml:"direction"`
	Protocol  string `yaml:"protocol"`
}

type FileConnection struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Live *bool  `yaml:"live"`
}

// File re-reads a YAML topology on every query. Connections are passed through
// as written, so a file with dangling references yields a malformed candidate.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Name() string {
	return "file:" + f.path
}

func (f *File) QueryTopology(ctx context.Context) (*topology.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, unavailable(f.Name(), err)
	}

	var doc FileTopology
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, unavailable(f.Name(), fmt.Errorf("failed to parse topology: %w", err))
	}

	return doc.Snapshot()
}

// Snapshot converts the document into a candidate snapshot.
func (doc *FileTopology) Snapshot() (*topology.Snapshot, error) {
	b := topology.NewBuilder()
	for _, e := range doc.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entity without name", ErrUnavailable)
		}
		b.AddEntity(e.Name, e.Tags)
		for _, p := range e.Ports {
			dir, err := parseDirection(p.Direction)
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrUnavailable, e.Name, p.Name, err)
			}
			b.AddPort(e.Name, p.Name, dir, p.Protocol)
		}
	}
	for _, c := range doc.Connections {
		live := true
		if c.Live != nil {
			live = *c.Live
		}
		b.Connect(topology.PortID(c.From), topology.PortID(c.To), live)
	}
	return b.Build(), nil
}

func parseDirection(s string) (topology.Direction, error) {
	switch topology.Direction(s) {
	case topology.Input, topology.Output, topology.Bidirectional:
		return topology.Direction(s), nil
	case "":
		return topology.Bidirectional, nil
	default:
		return "", fmt.Errorf("unknown port direction %q", s)
	}
}
