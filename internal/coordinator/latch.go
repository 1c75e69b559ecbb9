// Package coordinator hands "something changed" from the scanner to the
// presentation loop without a queue.
package coordinator

import (
	"go.uber.org/atomic"
)

// Latch is a coalescing dirty flag. Any number of RequestUpdate calls between
// two ConsumeIfDirty calls are observed exactly once.
type Latch struct {
	dirty *atomic.Bool
	wake  chan struct{}
}

func NewLatch() *Latch {
	return &Latch{
		dirty: atomic.NewBool(false),
		wake:  make(chan struct{}, 1),
	}
}

// RequestUpdate marks the latch dirty. Safe from any goroutine, never blocks.
func (l *Latch) RequestUpdate() {
	l.dirty.Store(true)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// ConsumeIfDirty clears the latch and reports whether it was dirty.
func (l *Latch) ConsumeIfDirty() bool {
	return l.dirty.Swap(false)
}

// Pending reports whether a refresh is owed without clearing it.
func (l *Latch) Pending() bool {
	return l.dirty.Load()
}

// Wake fires at least once after a RequestUpdate. Consumers that block on it
// must still call ConsumeIfDirty; a wake can be spurious.
func (l *Latch) Wake() <-chan struct{} {
	return l.wake
}
