package topology

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ErrMalformedSnapshot is returned for snapshots with dangling connections.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Validate checks that every connection endpoint resolves to a port in s.
func Validate(s *Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrMalformedSnapshot)
	}

	var errs error
	for _, c := range s.Connections {
		if _, ok := s.Port(c.Source); !ok {
			errs = multierr.Append(errs, fmt.Errorf("connection %s -> %s: unknown source port", c.Source, c.Destination))
		}
		if _, ok := s.Port(c.Destination); !ok {
			errs = multierr.Append(errs, fmt.Errorf("connection %s -> %s: unknown destination port", c.Source, c.Destination))
		}
	}
	if errs != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, errs)
	}
	return nil
}
