package topology

import (
	"sync"

	"go.uber.org/atomic"
)

const DefaultStaleAfterScans = 3

// Model holds the last committed snapshot. Readers call Current from any
// goroutine; a single writer (the scanner) calls Commit.
type Model struct {
	// mu serializes writers only. Readers never take it.
	mu         sync.Mutex
	current    *atomic.Pointer[Snapshot]
	staleAfter int
}

func NewModel(staleAfterScans int) *Model {
	if staleAfterScans < 1 {
		staleAfterScans = DefaultStaleAfterScans
	}
	return &Model{
		current:    atomic.NewPointer(Empty()),
		staleAfter: staleAfterScans,
	}
}

// Current returns the latest committed snapshot. Never nil.
func (m *Model) Current() *Snapshot {
	return m.current.Load()
}

// Commit validates candidate, merges it with the stored snapshot and swaps the
// result in. Entities missing from candidate are kept as Stale until they have
// been missing for staleAfterScans consecutive commits. On error the stored
// snapshot is left untouched.
func (m *Model) Commit(candidate *Snapshot) (Diff, error) {
	if err := Validate(candidate); err != nil {
		return Diff{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current.Load()
	next := &Snapshot{
		Entities:    make(map[string]*Entity, len(candidate.Entities)),
		Connections: append([]Connection(nil), candidate.Connections...),
		Sequence:    prev.Sequence + 1,
		TakenAt:     candidate.TakenAt,
	}

	for name, e := range candidate.Entities {
		c := e.clone()
		c.State = Discovered
		c.Misses = 0
		next.Entities[name] = c
	}

	for name, e := range prev.Entities {
		if _, seen := next.Entities[name]; seen {
			continue
		}
		misses := e.Misses + 1
		if misses >= m.staleAfter {
			continue
		}
		c := e.clone()
		c.State = Stale
		c.Misses = misses
		next.Entities[name] = c
	}

	next.index()
	d := Compare(prev, next)
	m.current.Store(next)
	return d, nil
}
