package topology

import "sort"

// Diff describes what changed between two committed snapshots.
type Diff struct {
	AddedEntities      []string
	RemovedEntities    []string
	AddedConnections   []Connection
	RemovedConnections []Connection
	Changed            bool
}

// Compare diffs two snapshots. Entities are matched by name only, so tag
// changes on an entity present in both are not reported. Connections are
// matched by their unordered endpoint pair.
func Compare(prev, next *Snapshot) Diff {
	if prev == nil {
		prev = Empty()
	}
	if next == nil {
		next = Empty()
	}

	var d Diff
	for name := range next.Entities {
		if _, ok := prev.Entities[name]; !ok {
			d.AddedEntities = append(d.AddedEntities, name)
		}
	}
	for name := range prev.Entities {
		if _, ok := next.Entities[name]; !ok {
			d.RemovedEntities = append(d.RemovedEntities, name)
		}
	}
	sort.Strings(d.AddedEntities)
	sort.Strings(d.RemovedEntities)

	prevConns := connSet(prev)
	nextConns := connSet(next)
	for _, c := range next.Connections {
		if _, ok := prevConns[c.Key()]; !ok {
			d.AddedConnections = append(d.AddedConnections, c)
		}
	}
	for _, c := range prev.Connections {
		if _, ok := nextConns[c.Key()]; !ok {
			d.RemovedConnections = append(d.RemovedConnections, c)
		}
	}

	d.Changed = len(d.AddedEntities) > 0 || len(d.RemovedEntities) > 0 ||
		len(d.AddedConnections) > 0 || len(d.RemovedConnections) > 0
	return d
}

func connSet(s *Snapshot) map[ConnKey]struct{} {
	set := make(map[ConnKey]struct{}, len(s.Connections))
	for _, c := range s.Connections {
		set[c.Key()] = struct{}{}
	}
	return set
}
