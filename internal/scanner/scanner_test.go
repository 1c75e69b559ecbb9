package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/25smoking/chanwatch/internal/coordinator"
	"github.com/25smoking/chanwatch/internal/core"
	"github.com/25smoking/chanwatch/internal/registry"
	"github.com/25smoking/chanwatch/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient counts calls and delegates to fn.
type fakeClient struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) (*topology.Snapshot, error)
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) QueryTopology(ctx context.Context) (*topology.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.fn(ctx, n)
}

// sleepRecorder replaces real timers with channels that have already fired.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) after(d time.Duration) (<-chan time.Time, func()) {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch, func() {}
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func snapA() *topology.Snapshot {
	b := topology.NewBuilder()
	b.AddPort("EntityA", "portOut1", topology.Output, "tcp")
	return b.Build()
}

func snapAB() *topology.Snapshot {
	b := topology.NewBuilder()
	out := b.AddPort("EntityA", "portOut1", topology.Output, "tcp")
	in := b.AddPort("EntityB", "portIn1", topology.Input, "tcp")
	b.Connect(out, in, true)
	return b.Build()
}

func dangling() *topology.Snapshot {
	b := topology.NewBuilder()
	out := b.AddPort("EntityA", "portOut1", topology.Output, "tcp")
	b.Connect(out, topology.MakePortID("Ghost", "in"), true)
	return b.Build()
}

func newTestScanner(client registry.Client, interval, max time.Duration) (*Scanner, *topology.Model, *coordinator.Latch) {
	model := topology.NewModel(3)
	latch := coordinator.NewLatch()
	s := New(Config{ScanInterval: interval, MaxBackoff: max}, client, model, latch, nil)
	return s, model, latch
}

var errDown = errors.New("connection refused")

func TestRun_BackoffGrowsToCapAndResets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{fn: func(_ context.Context, call int) (*topology.Snapshot, error) {
		switch {
		case call <= 5:
			return nil, errDown
		case call == 6:
			return snapA(), nil
		case call == 7:
			return nil, errDown
		default:
			cancel()
			return nil, ctx.Err()
		}
	}}

	s, _, _ := newTestScanner(client, 10*time.Millisecond, 50*time.Millisecond)
	rec := &sleepRecorder{}
	s.after = rec.after

	require.NoError(t, s.Run(ctx))

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{10 * ms, 20 * ms, 40 * ms, 50 * ms, 50 * ms, 10 * ms, 10 * ms}, rec.recorded())
	assert.Equal(t, Stopped, s.State())
}

func TestRun_CommitsThenNotifiesOnlyOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{fn: func(_ context.Context, call int) (*topology.Snapshot, error) {
		switch call {
		case 1:
			return snapA(), nil
		case 2:
			return snapA(), nil
		case 3:
			return snapAB(), nil
		default:
			cancel()
			return nil, ctx.Err()
		}
	}}

	s, model, latch := newTestScanner(client, time.Millisecond, time.Second)
	s.after = (&sleepRecorder{}).after

	require.NoError(t, s.Run(ctx))

	st := s.Status()
	assert.EqualValues(t, 4, st.Scans)
	assert.EqualValues(t, 3, st.Commits)
	assert.EqualValues(t, 2, st.Changes)
	assert.True(t, latch.ConsumeIfDirty())
	assert.Equal(t, []string{"EntityA", "EntityB"}, model.Current().EntityNames())
}

func TestRun_MalformedCandidateIsAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{fn: func(_ context.Context, call int) (*topology.Snapshot, error) {
		if call == 1 {
			return dangling(), nil
		}
		cancel()
		return nil, ctx.Err()
	}}

	s, model, latch := newTestScanner(client, time.Millisecond, time.Second)
	s.after = (&sleepRecorder{}).after

	require.NoError(t, s.Run(ctx))

	st := s.Status()
	assert.EqualValues(t, 1, st.ConsecutiveFailures)
	assert.ErrorIs(t, st.LastError, topology.ErrMalformedSnapshot)
	assert.Empty(t, model.Current().Entities)
	assert.False(t, latch.ConsumeIfDirty())
}

func TestRun_PanickingClientDoesNotKillLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{fn: func(_ context.Context, call int) (*topology.Snapshot, error) {
		switch call {
		case 1:
			panic("registry exploded")
		case 2:
			return snapA(), nil
		default:
			cancel()
			return nil, ctx.Err()
		}
	}}

	s, model, latch := newTestScanner(client, time.Millisecond, time.Second)
	s.after = (&sleepRecorder{}).after

	require.NoError(t, s.Run(ctx))
	assert.True(t, latch.ConsumeIfDirty())
	assert.Contains(t, model.Current().Entities, "EntityA")
	assert.Zero(t, s.Status().ConsecutiveFailures)
}

func TestRun_NilSnapshotIsAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{fn: func(_ context.Context, call int) (*topology.Snapshot, error) {
		if call == 1 {
			return nil, nil
		}
		cancel()
		return nil, ctx.Err()
	}}

	s, _, _ := newTestScanner(client, time.Millisecond, time.Second)
	s.after = (&sleepRecorder{}).after

	require.NoError(t, s.Run(ctx))
	assert.ErrorIs(t, s.Status().LastError, topology.ErrMalformedSnapshot)
}

func TestStop_DiscardsInFlightCandidate(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	// Ignores ctx on purpose and returns a valid snapshot after Stop.
	client := &fakeClient{fn: func(_ context.Context, _ int) (*topology.Snapshot, error) {
		close(entered)
		<-release
		return snapAB(), nil
	}}

	s, model, latch := newTestScanner(client, time.Hour, time.Hour)

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	<-entered
	assert.Equal(t, Scanning, s.State())
	s.Stop()
	close(release)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scanner did not stop")
	}

	<-s.Done()
	assert.Empty(t, model.Current().Entities)
	assert.False(t, latch.ConsumeIfDirty())
	assert.Equal(t, Stopped, s.State())
}

func TestCommit_SkippedOnceStopped(t *testing.T) {
	client := &fakeClient{fn: func(context.Context, int) (*topology.Snapshot, error) { return nil, nil }}
	s, model, _ := newTestScanner(client, time.Hour, time.Hour)

	s.Stop()
	_, discarded, err := s.commit(context.Background(), snapA())
	require.NoError(t, err)
	assert.True(t, discarded)
	assert.Empty(t, model.Current().Entities)
}

// blockingCommitter holds Commit open until released.
type blockingCommitter struct {
	*topology.Model
	entered chan struct{}
	release chan struct{}
}

func (b *blockingCommitter) Commit(c *topology.Snapshot) (topology.Diff, error) {
	close(b.entered)
	<-b.release
	return b.Model.Commit(c)
}

func TestStop_WaitsForCommitInProgress(t *testing.T) {
	client := &fakeClient{fn: func(context.Context, int) (*topology.Snapshot, error) { return nil, nil }}
	model := &blockingCommitter{
		Model:   topology.NewModel(3),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(Config{ScanInterval: time.Hour, MaxBackoff: time.Hour}, client, model, coordinator.NewLatch(), nil)

	go func() { _, _, _ = s.commit(context.Background(), snapA()) }()
	<-model.entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a commit was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(model.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Contains(t, model.Current().Entities, "EntityA")
}

func TestStop_InterruptsSleep(t *testing.T) {
	client := &fakeClient{fn: func(_ context.Context, _ int) (*topology.Snapshot, error) {
		return snapA(), nil
	}}
	s, _, latch := newTestScanner(client, time.Hour, time.Hour)

	go func() { _ = s.Run(context.Background()) }()

	select {
	case <-latch.Wake():
	case <-time.After(2 * time.Second):
		t.Fatal("first scan never committed")
	}
	assert.Eventually(t, func() bool { return s.State() == Sleeping }, time.Second, time.Millisecond)

	start := time.Now()
	s.Stop()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sleep was not interrupted")
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestStop_BeforeRun(t *testing.T) {
	client := &fakeClient{fn: func(context.Context, int) (*topology.Snapshot, error) {
		t.Error("no scan expected")
		return nil, nil
	}}
	s, _, _ := newTestScanner(client, time.Hour, time.Hour)
	s.Stop()
	s.Stop()
	require.NoError(t, s.Run(context.Background()))
}

func TestPause_ScanNowAndResume(t *testing.T) {
	client := &fakeClient{fn: func(_ context.Context, _ int) (*topology.Snapshot, error) {
		return snapA(), nil
	}}
	s, _, _ := newTestScanner(client, time.Hour, time.Hour)
	s.Pause()
	require.True(t, s.Paused())

	go func() { _ = s.Run(context.Background()) }()
	defer func() {
		s.Stop()
		<-s.Done()
	}()

	assert.Eventually(t, func() bool { return s.State() == Paused }, time.Second, time.Millisecond)
	assert.Zero(t, s.Status().Scans)

	s.ScanNow()
	assert.Eventually(t, func() bool { return s.Status().Commits == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.Paused())

	s.Resume()
	assert.False(t, s.Paused())
	assert.Eventually(t, func() bool { return s.Status().Commits == 2 }, time.Second, time.Millisecond)
}

func TestRun_Twice(t *testing.T) {
	client := &fakeClient{fn: func(context.Context, int) (*topology.Snapshot, error) { return snapA(), nil }}
	s, _, _ := newTestScanner(client, time.Hour, time.Hour)
	s.Stop()
	require.NoError(t, s.Run(context.Background()))
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyStarted)
}

func TestSetInterval(t *testing.T) {
	client := &fakeClient{fn: func(context.Context, int) (*topology.Snapshot, error) { return nil, nil }}
	s, _, _ := newTestScanner(client, time.Second, 10*time.Second)

	assert.Error(t, s.SetInterval(0))
	require.NoError(t, s.SetInterval(500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, s.Interval())

	require.NoError(t, s.SetInterval(time.Minute))
	assert.Equal(t, 10*time.Second, s.Interval())
}

func TestNew_ClampsConfig(t *testing.T) {
	client := &fakeClient{fn: func(context.Context, int) (*topology.Snapshot, error) { return nil, nil }}
	s := New(Config{ScanInterval: 5 * time.Second, MaxBackoff: time.Second}, client, topology.NewModel(1), coordinator.NewLatch(), nil)
	assert.Equal(t, 5*time.Second, s.maxBackoff)
	assert.Equal(t, Idle, s.State())

	s = New(Config{}, client, topology.NewModel(1), coordinator.NewLatch(), nil)
	assert.Equal(t, DefaultInterval, s.Interval())
	assert.Equal(t, DefaultMaxBackoff, s.maxBackoff)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "sleeping", Sleeping.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestPanicErrorIsWrapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{fn: func(_ context.Context, call int) (*topology.Snapshot, error) {
		if call == 1 {
			panic("boom")
		}
		cancel()
		return nil, ctx.Err()
	}}
	s, _, _ := newTestScanner(client, time.Millisecond, time.Second)
	s.after = (&sleepRecorder{}).after

	require.NoError(t, s.Run(ctx))
	assert.ErrorIs(t, s.Status().LastError, core.ErrPanic)
}
