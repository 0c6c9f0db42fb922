package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) OnStateChange(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) all() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

func fastConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  30 * time.Millisecond,
		HalfOpenTimeout:  200 * time.Millisecond,
		SuccessThreshold: 3,
		HalfOpenRatio:    0.2,
	}
}

func TestTripsOpenAtFailureThreshold(t *testing.T) {
	obs := &recordingObserver{}
	b := New("GBR", fastConfig(), obs)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
	}
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.ShouldAllowRequest())

	events := obs.all()
	require.Len(t, events, 1)
	assert.Equal(t, StateClosed, events[0].From)
	assert.Equal(t, StateOpen, events[0].To)
	assert.Equal(t, "failure_threshold", events[0].Reason)
}

func TestFailuresOutsideWindowDoNotCount(t *testing.T) {
	b := New("GBR", fastConfig())
	clock := time.Now()
	b.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	// The fifth failure lands after the window has slid past the first four.
	clock = clock.Add(2 * time.Minute)
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestTimerDrivenHalfOpenTransition(t *testing.T) {
	obs := &recordingObserver{}
	b := New("GBR", fastConfig(), obs)
	defer b.Stop()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	// No traffic at all: the transition must still happen.
	require.Eventually(t, func() bool {
		return b.State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	events := obs.all()
	require.Len(t, events, 2)
	assert.Equal(t, "recovery_timeout", events[1].Reason)
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b := New("GBR", fastConfig())
	defer b.Stop()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Eventually(t, func() bool { return b.State() == StateHalfOpen }, time.Second, 5*time.Millisecond)

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	// The recovery timer restarts: it must reach half_open again.
	require.Eventually(t, func() bool { return b.State() == StateHalfOpen }, time.Second, 5*time.Millisecond)
}

func TestHalfOpenSuccessThresholdCloses(t *testing.T) {
	b := New("GBR", fastConfig())
	defer b.Stop()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Eventually(t, func() bool { return b.State() == StateHalfOpen }, time.Second, 5*time.Millisecond)

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())

	// All failure history cleared: another single failure must not trip.
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.ShouldAllowRequest())
}

func TestHalfOpenTimeoutForcesOpen(t *testing.T) {
	cfg := fastConfig()
	cfg.HalfOpenTimeout = 30 * time.Millisecond
	cfg.RecoveryTimeout = 10 * time.Millisecond
	b := New("GBR", cfg)
	defer b.Stop()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Eventually(t, func() bool { return b.State() == StateHalfOpen }, time.Second, time.Millisecond)

	// No verdict recorded: forced back to open.
	require.Eventually(t, func() bool { return b.State() == StateOpen }, time.Second, time.Millisecond)
}

func TestHalfOpenAdmissionRatio(t *testing.T) {
	b := New("GBR", fastConfig())
	defer b.Stop()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Eventually(t, func() bool { return b.State() == StateHalfOpen }, time.Second, 5*time.Millisecond)

	b.draw = func() float64 { return 0.1 }
	assert.True(t, b.ShouldAllowRequest(), "draw below ratio admits the probe")
	b.draw = func() float64 { return 0.9 }
	assert.False(t, b.ShouldAllowRequest(), "draw above ratio rejects the call")
}

func TestMaintenanceOverridesEverything(t *testing.T) {
	b := New("GBR", fastConfig())
	assert.True(t, b.ShouldAllowRequest())

	b.SetMaintenance(true)
	assert.False(t, b.ShouldAllowRequest(), "maintenance blocks calls in closed state")
	assert.Equal(t, StateClosed, b.State(), "maintenance is not a circuit state")

	// Never auto-exited.
	b.RecordSuccess()
	assert.False(t, b.ShouldAllowRequest())

	b.SetMaintenance(false)
	assert.True(t, b.ShouldAllowRequest())
}

func TestOutageStats(t *testing.T) {
	b := New("GBR", fastConfig())
	defer b.Stop()
	clock := time.Now()
	b.now = func() time.Time { return clock }
	b.startedAt = clock

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	snap := b.Snapshot()
	require.NotNil(t, snap.OfflineSince)

	// Close the circuit 40s later via the half-open path.
	clock = clock.Add(30 * time.Second)
	b.mu.Lock()
	b.transition(StateHalfOpen, "recovery_timeout")
	b.mu.Unlock()
	clock = clock.Add(10 * time.Second)
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordSuccess()
	require.Equal(t, StateClosed, b.State())

	clock = clock.Add(60 * time.Second)
	stats := b.Stats()
	assert.Equal(t, 1, stats.Outages)
	assert.Equal(t, 40*time.Second, stats.LongestOutage)
	assert.Equal(t, 40*time.Second, stats.MeanRecoveryTime)
	assert.InDelta(t, 60.0, stats.UptimePercent, 0.5)
}

func TestSnapshotFields(t *testing.T) {
	b := New("GBR", fastConfig())
	defer b.Stop()

	b.RecordFailure()
	b.RecordSuccess()
	snap := b.Snapshot()
	assert.Equal(t, "GBR", snap.Peer)
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 1, snap.Failures)
	assert.NotNil(t, snap.LastFailure)
	assert.NotNil(t, snap.LastSuccess)
	assert.Nil(t, snap.OpenedAt)
}
