package topology

import (
	"sort"
	"time"
)

type Lifecycle string

const (
	Discovered Lifecycle = "discovered"
	Stale      Lifecycle = "stale"
	Removed    Lifecycle = "removed"
)

type Direction string

const (
	Input         Direction = "input"
	Output        Direction = "output"
	Bidirectional Direction = "bidirectional"
)

// PortID identifies a port as "<entity>/<port>". Either part may itself
// contain "/", so an id is only resolved through Snapshot.Port, never split.
type PortID string

func MakePortID(entity, port string) PortID {
	return PortID(entity + "/" + port)
}

type Port struct {
	ID        PortID
	Name      string
	Direction Direction
	Protocol  string
}

type Entity struct {
	Name  string
	Tags  map[string]string
	State Lifecycle
	// Misses counts consecutive scans the entity was absent from.
	Misses int
	Ports  map[string]*Port
}

// PortNames returns the entity's port names in sorted order.
func (e *Entity) PortNames() []string {
	names := make([]string, 0, len(e.Ports))
	for n := range e.Ports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (e *Entity) clone() *Entity {
	c := &Entity{
		Name:   e.Name,
		State:  e.State,
		Misses: e.Misses,
		Tags:   make(map[string]string, len(e.Tags)),
		Ports:  make(map[string]*Port, len(e.Ports)),
	}
	for k, v := range e.Tags {
		c.Tags[k] = v
	}
	for k, p := range e.Ports {
		cp := *p
		c.Ports[k] = &cp
	}
	return c
}

// Connection links two ports. It refers to its endpoints by id only and does
// not keep them alive.
type Connection struct {
	Source      PortID
	Destination PortID
	Live        bool
}

// ConnKey is the unordered endpoint pair used to compare connections.
type ConnKey struct {
	A, B PortID
}

func (c Connection) Key() ConnKey {
	if c.Source <= c.Destination {
		return ConnKey{A: c.Source, B: c.Destination}
	}
	return ConnKey{A: c.Destination, B: c.Source}
}

// Snapshot is the world as of one scan. It must not be modified once built.
type Snapshot struct {
	Entities    map[string]*Entity
	Connections []Connection
	Sequence    uint64
	TakenAt     time.Time

	// ports indexes every port by id; set by Build and Commit.
	ports map[PortID]*Port
}

func Empty() *Snapshot {
	return &Snapshot{Entities: make(map[string]*Entity)}
}

// EntityNames returns the entity names in sorted order.
func (s *Snapshot) EntityNames() []string {
	names := make([]string, 0, len(s.Entities))
	for n := range s.Entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Port resolves a port id against the snapshot.
func (s *Snapshot) Port(id PortID) (*Port, bool) {
	if s.ports != nil {
		p, ok := s.ports[id]
		return p, ok
	}
	for _, e := range s.Entities {
		for _, p := range e.Ports {
			if p.ID == id {
				return p, true
			}
		}
	}
	return nil, false
}

func (s *Snapshot) index() {
	s.ports = make(map[PortID]*Port)
	for _, e := range s.Entities {
		for _, p := range e.Ports {
			s.ports[p.ID] = p
		}
	}
}

// Len returns the number of entities and connections.
func (s *Snapshot) Len() (entities, connections int) {
	return len(s.Entities), len(s.Connections)
}

// Builder assembles a Snapshot. Registry clients use it to produce candidates.
type Builder struct {
	snap *Snapshot
	seen map[ConnKey]bool
}

func NewBuilder() *Builder {
	return &Builder{
		snap: Empty(),
		seen: make(map[ConnKey]bool),
	}
}

// AddEntity adds an entity if it does not exist yet and merges tags into it.
func (b *Builder) AddEntity(name string, tags map[string]string) *Builder {
	e, exists := b.snap.Entities[name]
	if !exists {
		e = &Entity{
			Name:  name,
			State: Discovered,
			Tags:  make(map[string]string),
			Ports: make(map[string]*Port),
		}
		b.snap.Entities[name] = e
	}
	for k, v := range tags {
		e.Tags[k] = v
	}
	return b
}

// AddPort adds a port to an entity, creating the entity when needed.
func (b *Builder) AddPort(entity, name string, dir Direction, protocol string) PortID {
	b.AddEntity(entity, nil)
	id := MakePortID(entity, name)
	e := b.snap.Entities[entity]
	if _, exists := e.Ports[name]; !exists {
		e.Ports[name] = &Port{
			ID:        id,
			Name:      name,
			Direction: dir,
			Protocol:  protocol,
		}
	}
	return id
}

// Connect records a connection. Duplicates of the same unordered pair are ignored.
// Endpoints are not checked here; Validate does that.
func (b *Builder) Connect(src, dst PortID, live bool) *Builder {
	c := Connection{Source: src, Destination: dst, Live: live}
	if b.seen[c.Key()] {
		return b
	}
	b.seen[c.Key()] = true
	b.snap.Connections = append(b.snap.Connections, c)
	return b
}

func (b *Builder) Build() *Snapshot {
	s := b.snap
	s.TakenAt = time.Now()
	sort.Slice(s.Connections, func(i, j int) bool {
		ki, kj := s.Connections[i].Key(), s.Connections[j].Key()
		if ki.A != kj.A {
			return ki.A < kj.A
		}
		return ki.B < kj.B
	})
	s.index()
	b.snap = Empty()
	b.seen = make(map[ConnKey]bool)
	return s
}
