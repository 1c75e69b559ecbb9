package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/25smoking/chanwatch/internal/core"
	"github.com/25smoking/chanwatch/internal/registry"
	"github.com/25smoking/chanwatch/internal/topology"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	DefaultInterval   = 2 * time.Second
	DefaultMaxBackoff = 30 * time.Second
)

var ErrAlreadyStarted = errors.New("scanner already started")

type Config struct {
	ScanInterval time.Duration
	MaxBackoff   time.Duration
}

// Committer is the write side of the topology model.
type Committer interface {
	Commit(candidate *topology.Snapshot) (topology.Diff, error)
}

// Notifier receives a signal after every commit that changed the topology.
type Notifier interface {
	RequestUpdate()
}

// Status is a point-in-time view of the scanner for display.
type Status struct {
	State               State
	Paused              bool
	Interval            time.Duration
	NextSleep           time.Duration
	ConsecutiveFailures int64
	Scans               int64
	Commits             int64
	Changes             int64
	LastError           error
}

// Scanner polls a registry on its own goroutine and commits valid candidates
// to the model. It is the only writer of the model.
type Scanner struct {
	client registry.Client
	model  Committer
	notify Notifier
	log    *zap.SugaredLogger

	maxBackoff time.Duration
	interval   *atomic.Duration
	nextSleep  *atomic.Duration
	state      *atomic.Int32
	paused     *atomic.Bool
	scanNow    *atomic.Bool
	started    *atomic.Bool

	failures *atomic.Int64
	scans    *atomic.Int64
	commits  *atomic.Int64
	changes  *atomic.Int64
	lastErr  *atomic.Error

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	// commitMu orders Stop against the final stopping check and Commit.
	commitMu sync.Mutex
	done     chan struct{}

	// after is swapped in tests to control sleeping.
	after func(d time.Duration) (<-chan time.Time, func())
}

func New(cfg Config, client registry.Client, model Committer, notify Notifier, log *zap.SugaredLogger) *Scanner {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultInterval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.ScanInterval {
		cfg.MaxBackoff = cfg.ScanInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Scanner{
		client:     client,
		model:      model,
		notify:     notify,
		log:        log.With("registry", client.Name()),
		maxBackoff: cfg.MaxBackoff,
		interval:   atomic.NewDuration(cfg.ScanInterval),
		nextSleep:  atomic.NewDuration(0),
		state:      atomic.NewInt32(int32(Idle)),
		paused:     atomic.NewBool(false),
		scanNow:    atomic.NewBool(false),
		started:    atomic.NewBool(false),
		failures:   atomic.NewInt64(0),
		scans:      atomic.NewInt64(0),
		commits:    atomic.NewInt64(0),
		changes:    atomic.NewInt64(0),
		lastErr:    atomic.NewError(nil),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		after:      timerAfter,
	}
}

func timerAfter(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}

// Run scans until ctx is cancelled or Stop is called. It returns nil on a
// clean stop; registry errors never end the loop.
func (s *Scanner) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(s.done)
	defer s.setState(Stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.log.Infow("scanner started", "interval", s.interval.Load(), "max_backoff", s.maxBackoff)
	defer s.log.Info("scanner stopped")

	var bo *backoff.ExponentialBackOff
	for {
		if s.stopping(ctx) {
			return nil
		}

		if s.paused.Load() && !s.scanNow.Load() {
			s.setState(Paused)
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
			}
			continue
		}
		s.scanNow.Store(false)

		sleep, err := s.scanOnce(ctx)
		if s.stopping(ctx) {
			return nil
		}
		if err != nil {
			if bo == nil {
				bo = newBackoff(s.interval.Load(), s.maxBackoff)
			}
			sleep = bo.NextBackOff()
			s.log.Warnw("scan failed",
				"consecutive_failures", s.failures.Load(),
				"retry_in", sleep,
				"error", err,
			)
		} else {
			bo = nil
		}

		s.nextSleep.Store(sleep)
		s.setState(Sleeping)
		timeout, stopTimer := s.after(sleep)
		select {
		case <-ctx.Done():
			stopTimer()
			return nil
		case <-s.wake:
			stopTimer()
		case <-timeout:
		}
	}
}

// scanOnce performs one Scanning -> Success|Failure step and returns the
// interval to sleep on success.
func (s *Scanner) scanOnce(ctx context.Context) (time.Duration, error) {
	s.setState(Scanning)
	s.scans.Inc()

	candidate, err := core.SafeCall(ctx, s.log, s.client.Name(), s.client.QueryTopology)
	if s.stopping(ctx) {
		// Cancelled mid-scan: drop the candidate, whatever came back.
		s.log.Debug("scan cancelled, candidate discarded")
		return 0, nil
	}
	if err == nil && candidate == nil {
		err = fmt.Errorf("%w: registry returned no snapshot", topology.ErrMalformedSnapshot)
	}

	var diff topology.Diff
	if err == nil {
		var discarded bool
		diff, discarded, err = s.commit(ctx, candidate)
		if discarded {
			s.log.Debug("scan cancelled, candidate discarded")
			return 0, nil
		}
	}
	if err != nil {
		s.setState(Failure)
		s.failures.Inc()
		s.lastErr.Store(err)
		return 0, err
	}

	s.setState(Success)
	s.failures.Store(0)
	s.lastErr.Store(nil)
	s.commits.Inc()

	// Commit has returned, so the new snapshot is visible before the signal.
	if diff.Changed {
		s.changes.Inc()
		s.notify.RequestUpdate()
		s.log.Infow("topology changed",
			"added_entities", diff.AddedEntities,
			"removed_entities", diff.RemovedEntities,
			"added_connections", len(diff.AddedConnections),
			"removed_connections", len(diff.RemovedConnections),
		)
	}
	return s.interval.Load(), nil
}

// commit re-checks for shutdown and commits under commitMu, so no commit
// starts once Stop has returned.
func (s *Scanner) commit(ctx context.Context, candidate *topology.Snapshot) (topology.Diff, bool, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if s.stopping(ctx) {
		return topology.Diff{}, true, nil
	}
	diff, err := s.model.Commit(candidate)
	return diff, false, err
}

// Stop requests shutdown. It does not wait for Run to return; use Done for
// that. Once Stop returns, no further candidate is committed.
func (s *Scanner) Stop() {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done is closed once Run has returned.
func (s *Scanner) Done() <-chan struct{} {
	return s.done
}

func (s *Scanner) Pause() {
	s.paused.Store(true)
	s.log.Info("scanning paused")
}

func (s *Scanner) Resume() {
	if s.paused.CompareAndSwap(true, false) {
		s.log.Info("scanning resumed")
		s.poke()
	}
}

func (s *Scanner) Paused() bool {
	return s.paused.Load()
}

// ScanNow cuts the current sleep short. It also runs one scan while paused.
func (s *Scanner) ScanNow() {
	s.scanNow.Store(true)
	s.poke()
}

// SetInterval changes the base interval from the next sleep on. A running
// failure backoff keeps its schedule until the next success.
func (s *Scanner) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", d)
	}
	if d > s.maxBackoff {
		d = s.maxBackoff
	}
	s.interval.Store(d)
	return nil
}

func (s *Scanner) Interval() time.Duration {
	return s.interval.Load()
}

func (s *Scanner) State() State {
	return State(s.state.Load())
}

func (s *Scanner) Status() Status {
	return Status{
		State:               s.State(),
		Paused:              s.paused.Load(),
		Interval:            s.interval.Load(),
		NextSleep:           s.nextSleep.Load(),
		ConsecutiveFailures: s.failures.Load(),
		Scans:               s.scans.Load(),
		Commits:             s.commits.Load(),
		Changes:             s.changes.Load(),
		LastError:           s.lastErr.Load(),
	}
}

// stopping reports a requested shutdown. Stop is checked directly so that a
// candidate returned right after Stop is never committed.
func (s *Scanner) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Scanner) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Scanner) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
