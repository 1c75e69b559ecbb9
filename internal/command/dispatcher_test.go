package command

import (
	"sync"
	"testing"
	"time"

	"github.com/25smoking/chanwatch/internal/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockScan records scanner control calls.
type mockScan struct {
	paused   bool
	scanNow  int
	interval time.Duration
}

func (m *mockScan) Pause()       { m.paused = true }
func (m *mockScan) Resume()      { m.paused = false }
func (m *mockScan) Paused() bool { return m.paused }
func (m *mockScan) ScanNow()     { m.scanNow++ }

func (m *mockScan) Interval() time.Duration { return m.interval }

func (m *mockScan) SetInterval(d time.Duration) error {
	m.interval = d
	return nil
}

func TestInvoke_Unknown(t *testing.T) {
	d := NewDispatcher()
	err := d.Invoke(0x1234)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Contains(t, err.Error(), "0x1234")
}

func TestInvoke_Disabled(t *testing.T) {
	d := NewDispatcher()
	ran := false
	require.NoError(t, d.Register(1, func() { ran = true }, func() bool { return false }))

	assert.ErrorIs(t, d.Invoke(1), ErrDisabled)
	assert.False(t, ran)
	assert.False(t, d.Enabled(1))
}

func TestRegister_NilAction(t *testing.T) {
	assert.Error(t, NewDispatcher().Register(1, nil, nil))
}

func TestRegister_ReplacesKeepsOrder(t *testing.T) {
	d := NewDispatcher()
	var got []string
	require.NoError(t, d.Register(2, func() { got = append(got, "old") }, nil))
	require.NoError(t, d.Register(1, func() {}, nil))
	require.NoError(t, d.Register(2, func() { got = append(got, "new") }, nil))

	require.NoError(t, d.Invoke(2))
	assert.Equal(t, []string{"new"}, got)
	assert.Equal(t, []ID{2, 1}, d.Commands())
}

func TestInvoke_ReentrantRunsAfterCurrentAction(t *testing.T) {
	d := NewDispatcher()
	var trace []string

	require.NoError(t, d.Register(2, func() { trace = append(trace, "inner") }, nil))
	require.NoError(t, d.Register(1, func() {
		trace = append(trace, "outer-start")
		assert.NoError(t, d.Invoke(2))
		assert.ErrorIs(t, d.Invoke(99), ErrUnknownCommand)
		trace = append(trace, "outer-end")
	}, nil))

	require.NoError(t, d.Invoke(1))
	assert.Equal(t, []string{"outer-start", "outer-end", "inner"}, trace)

	// Dispatcher is idle again.
	require.NoError(t, d.Invoke(2))
	assert.Equal(t, "inner", trace[len(trace)-1])
}

func TestInvoke_PredicateMayQueryDispatcher(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(1, func() {}, nil))
	require.NoError(t, d.Register(2, func() {}, func() bool { return d.Enabled(1) }))
	assert.NoError(t, d.Invoke(2))
}

func TestInvoke_PanicDoesNotPoisonDispatcher(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(1, func() { panic("bad action") }, nil))
	ok := false
	require.NoError(t, d.Register(2, func() { ok = true }, nil))

	assert.ErrorIs(t, d.Invoke(1), ErrActionPanicked)
	require.NoError(t, d.Invoke(2))
	assert.True(t, ok)
}

func TestInvoke_ConcurrentCallersRunEveryAction(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	count := 0
	require.NoError(t, d.Register(1, func() {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Invoke(1))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, count)
}

func TestInvoke_FromSecondGoroutineIsQueued(t *testing.T) {
	d := NewDispatcher()
	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var trace []string

	require.NoError(t, d.Register(1, func() {
		close(entered)
		<-release
		mu.Lock()
		trace = append(trace, "first")
		mu.Unlock()
	}, nil))
	require.NoError(t, d.Register(2, func() {
		mu.Lock()
		trace = append(trace, "second")
		mu.Unlock()
	}, nil))
	require.NoError(t, d.Register(3, func() { panic("queued") }, nil))

	outer := make(chan error, 1)
	go func() { outer <- d.Invoke(1) }()
	<-entered

	assert.NoError(t, d.Invoke(2))
	assert.NoError(t, d.Invoke(3))
	mu.Lock()
	assert.Empty(t, trace)
	mu.Unlock()

	close(release)
	assert.ErrorIs(t, <-outer, ErrActionPanicked)
	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, trace)
	mu.Unlock()
}

func TestBuiltins_RepaintAlwaysMarksDirty(t *testing.T) {
	d := NewDispatcher()
	latch := coordinator.NewLatch()
	scan := &mockScan{paused: true}
	require.NoError(t, RegisterBuiltins(d, latch, &Display{}, scan))

	require.NoError(t, d.Invoke(Repaint))
	assert.True(t, latch.ConsumeIfDirty())
	assert.False(t, latch.ConsumeIfDirty())

	// Independent of scanner state.
	scan.paused = false
	require.NoError(t, d.Invoke(Repaint))
	assert.True(t, latch.ConsumeIfDirty())
}

func TestBuiltins_Background(t *testing.T) {
	d := NewDispatcher()
	latch := coordinator.NewLatch()
	display := &Display{}
	require.NoError(t, RegisterBuiltins(d, latch, display, nil))

	require.NoError(t, d.Invoke(InvertBackground))
	assert.Equal(t, InvertedGradient, display.Background)
	require.NoError(t, d.Invoke(InvertBackground))
	assert.Equal(t, Gradient, display.Background)
	require.NoError(t, d.Invoke(WhiteBackground))
	assert.Equal(t, White, display.Background)
	assert.Equal(t, "white", display.Background.String())
	assert.True(t, latch.ConsumeIfDirty())

	assert.ErrorIs(t, d.Invoke(PauseScanning), ErrUnknownCommand)
	assert.Equal(t, []ID{Repaint, InvertBackground, WhiteBackground}, d.Commands())
}

func TestBuiltins_ScanControl(t *testing.T) {
	d := NewDispatcher()
	scan := &mockScan{}
	require.NoError(t, RegisterBuiltins(d, coordinator.NewLatch(), &Display{}, scan))

	assert.ErrorIs(t, d.Invoke(ResumeScanning), ErrDisabled)
	require.NoError(t, d.Invoke(PauseScanning))
	assert.True(t, scan.paused)
	assert.ErrorIs(t, d.Invoke(PauseScanning), ErrDisabled)
	require.NoError(t, d.Invoke(ResumeScanning))
	assert.False(t, scan.paused)

	require.NoError(t, d.Invoke(ScanNow))
	assert.Equal(t, 1, scan.scanNow)
}

func TestBuiltins_ScanInterval(t *testing.T) {
	d := NewDispatcher()
	scan := &mockScan{interval: 400 * time.Millisecond}
	require.NoError(t, RegisterBuiltins(d, coordinator.NewLatch(), &Display{}, scan))

	require.NoError(t, d.Invoke(ScanSlower))
	assert.Equal(t, 800*time.Millisecond, scan.interval)

	require.NoError(t, d.Invoke(ScanFaster))
	require.NoError(t, d.Invoke(ScanFaster))
	require.NoError(t, d.Invoke(ScanFaster))
	assert.Equal(t, 100*time.Millisecond, scan.interval)

	assert.ErrorIs(t, d.Invoke(ScanFaster), ErrDisabled)
	assert.Equal(t, 100*time.Millisecond, scan.interval)
}

func TestID_String(t *testing.T) {
	assert.Equal(t, "repaint", Repaint.String())
	assert.Equal(t, "command(0x42)", ID(0x42).String())
}
