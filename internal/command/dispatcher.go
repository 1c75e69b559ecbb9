package command

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrDisabled       = errors.New("command disabled")
	ErrActionPanicked = errors.New("command action panicked")
)

// ID is a stable command identifier.
type ID int

func (id ID) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("command(%#x)", int(id))
}

type Action func()

// Predicate reports whether a command may run right now. nil means always.
type Predicate func() bool

type record struct {
	action  Action
	enabled Predicate
}

// Dispatcher maps command ids to actions and runs them one at a time. An
// Invoke issued while an action is running is checked immediately and its
// action runs after the current one returns, on the goroutine that is already
// dispatching. Actions may therefore invoke other commands without deadlock.
type Dispatcher struct {
	mu      sync.Mutex
	table   map[ID]record
	order   []ID
	running bool
	queue   []Action
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{table: make(map[ID]record)}
}

// Register binds id to action, replacing any earlier binding.
func (d *Dispatcher) Register(id ID, action Action, isEnabled Predicate) error {
	if action == nil {
		return fmt.Errorf("register %s: nil action", id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.table[id]; !exists {
		d.order = append(d.order, id)
	}
	d.table[id] = record{action: action, enabled: isEnabled}
	return nil
}

// Commands returns registered ids in registration order.
func (d *Dispatcher) Commands() []ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ID(nil), d.order...)
}

// Enabled reports whether id is registered and its predicate currently holds.
func (d *Dispatcher) Enabled(id ID) bool {
	d.mu.Lock()
	rec, ok := d.table[id]
	d.mu.Unlock()
	return ok && (rec.enabled == nil || rec.enabled())
}

// Invoke runs the action bound to id. Unknown and disabled commands are
// reported at once. If another action is running, including one on a
// different goroutine, the action is queued and Invoke returns nil before it
// has run; it then runs on the dispatching goroutine, and a panic in it is
// reported to that goroutine's Invoke. Callers that need the action's outcome
// should invoke from a single goroutine.
func (d *Dispatcher) Invoke(id ID) error {
	d.mu.Lock()
	rec, ok := d.table[id]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %#x", ErrUnknownCommand, int(id))
	}

	// Predicates run without the lock; they may look at the dispatcher.
	if rec.enabled != nil && !rec.enabled() {
		return fmt.Errorf("%w: %s", ErrDisabled, id)
	}

	d.mu.Lock()
	if d.running {
		d.queue = append(d.queue, rec.action)
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.mu.Unlock()

	return d.drain(rec.action)
}

// drain runs first and then everything queued behind it. The running flag is
// cleared under the same lock that observes an empty queue, so a concurrent
// Invoke either gets queued here or starts its own drain.
func (d *Dispatcher) drain(first Action) error {
	var err error
	next := first
	for next != nil {
		if perr := runAction(next); perr != nil && err == nil {
			err = perr
		}

		d.mu.Lock()
		if len(d.queue) == 0 {
			next = nil
			d.running = false
		} else {
			next = d.queue[0]
			d.queue = d.queue[1:]
		}
		d.mu.Unlock()
	}
	return err
}

func runAction(a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrActionPanicked, r)
		}
	}()
	a()
	return nil
}
