// Package breaker implements the per-peer circuit breaker and failover
// controller that gates every outbound call to a remote federation instance.
package breaker

import (
	"math/rand"
	"sync"
	"time"
)

// State is the circuit state of a single breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds the breaker tuning knobs. Zero values are replaced with the
// defaults below at construction.
type Config struct {
	// FailureThreshold failures inside FailureWindow trip closed→open.
	FailureThreshold int
	FailureWindow    time.Duration
	// RecoveryTimeout is how long the breaker stays open before probing.
	RecoveryTimeout time.Duration
	// HalfOpenTimeout forces half_open back to open when no verdict is
	// reached in time.
	HalfOpenTimeout time.Duration
	// SuccessThreshold consecutive probe successes close the breaker.
	SuccessThreshold int
	// HalfOpenRatio is the fraction of calls admitted while half-open,
	// drawn independently per call.
	HalfOpenRatio float64
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = time.Minute
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenTimeout <= 0 {
		c.HalfOpenTimeout = 60 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.HalfOpenRatio <= 0 || c.HalfOpenRatio > 1 {
		c.HalfOpenRatio = 0.2
	}
	return c
}

// Event describes one circuit state transition.
type Event struct {
	Peer   string
	From   State
	To     State
	Reason string
	At     time.Time
}

// Observer receives state-change events. Observers subscribe at construction
// time and must not block: events are delivered synchronously under the
// breaker lock.
type Observer interface {
	OnStateChange(Event)
}

// Snapshot is a point-in-time copy of breaker state for operator surfaces.
type Snapshot struct {
	Peer             string     `json:"peer"`
	State            State      `json:"state"`
	Failures         int        `json:"failures"`
	Successes        int        `json:"successes"`
	LastFailure      *time.Time `json:"last_failure,omitempty"`
	LastSuccess      *time.Time `json:"last_success,omitempty"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	HalfOpenAt       *time.Time `json:"half_open_at,omitempty"`
	OfflineSince     *time.Time `json:"offline_since,omitempty"`
	Maintenance      bool       `json:"maintenance"`
	RecoveryAttempts int        `json:"recovery_attempts"`
}

// Stats carries outage statistics derived from breaker history.
type Stats struct {
	Outages          int           `json:"outages"`
	LongestOutage    time.Duration `json:"longest_outage"`
	MeanRecoveryTime time.Duration `json:"mean_recovery_time"`
	UptimePercent    float64       `json:"uptime_percent"`
}

// Breaker is a three-state circuit breaker for one remote dependency. All
// methods are safe for concurrent use; ShouldAllowRequest is a pure local
// decision with no I/O.
type Breaker struct {
	peer      string
	cfg       Config
	observers []Observer

	mu           sync.Mutex
	state        State
	failures     []time.Time
	successes    int
	lastFailure  time.Time
	lastSuccess  time.Time
	openedAt     time.Time
	halfOpenAt   time.Time
	offlineSince time.Time
	maintenance  bool

	recoveryTimer *time.Timer
	halfOpenTimer *time.Timer

	startedAt        time.Time
	recoveryAttempts int
	outageCount      int
	longestOutage    time.Duration
	totalDowntime    time.Duration

	now  func() time.Time
	draw func() float64
}

// New creates a closed breaker for the named peer. Observers are notified of
// every subsequent state transition.
func New(peer string, cfg Config, observers ...Observer) *Breaker {
	b := &Breaker{
		peer:      peer,
		cfg:       cfg.withDefaults(),
		observers: observers,
		state:     StateClosed,
		now:       time.Now,
		draw:      rand.Float64,
	}
	b.startedAt = b.now()
	return b
}

// Peer returns the name of the protected dependency.
func (b *Breaker) Peer() string { return b.peer }

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ShouldAllowRequest reports whether a call to the peer may be attempted.
// Maintenance mode blocks everything. Open blocks everything. Half-open
// admits an independent random fraction of calls as probes.
func (b *Breaker) ShouldAllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maintenance {
		return false
	}
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return b.draw() < b.cfg.HalfOpenRatio
	default:
		return false
	}
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSuccess = b.now()
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed, "success_threshold")
		}
	case StateClosed:
		// Sustained health prunes stale failures.
		b.pruneFailures()
	}
}

// RecordFailure records a failed call outcome. In closed state failures are
// counted inside the sliding window; in half-open any failure reopens the
// breaker immediately and restarts the recovery timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.lastFailure = now
	switch b.state {
	case StateClosed:
		b.failures = append(b.failures, now)
		b.pruneFailures()
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.transition(StateOpen, "failure_threshold")
		}
	case StateHalfOpen:
		b.transition(StateOpen, "probe_failure")
	}
}

// SetMaintenance toggles the manual maintenance override. While set, all
// calls are blocked regardless of circuit state; it is never exited
// automatically.
func (b *Breaker) SetMaintenance(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maintenance = on
}

// Maintenance reports whether the maintenance override is set.
func (b *Breaker) Maintenance() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maintenance
}

// Stop cancels pending recovery timers. The breaker must not be used after
// Stop.
func (b *Breaker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimers()
}

// Snapshot returns a copy of the current breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneFailures()
	snap := Snapshot{
		Peer:             b.peer,
		State:            b.state,
		Failures:         len(b.failures),
		Successes:        b.successes,
		Maintenance:      b.maintenance,
		RecoveryAttempts: b.recoveryAttempts,
	}
	snap.LastFailure = timePtr(b.lastFailure)
	snap.LastSuccess = timePtr(b.lastSuccess)
	snap.OpenedAt = timePtr(b.openedAt)
	snap.HalfOpenAt = timePtr(b.halfOpenAt)
	snap.OfflineSince = timePtr(b.offlineSince)
	return snap
}

// Stats returns outage statistics since the breaker was created. An ongoing
// outage counts toward downtime but not toward mean recovery time.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	downtime := b.totalDowntime
	longest := b.longestOutage
	if !b.offlineSince.IsZero() {
		ongoing := now.Sub(b.offlineSince)
		downtime += ongoing
		if ongoing > longest {
			longest = ongoing
		}
	}
	elapsed := now.Sub(b.startedAt)
	uptime := 100.0
	if elapsed > 0 {
		uptime = 100 * (1 - float64(downtime)/float64(elapsed))
		if uptime < 0 {
			uptime = 0
		}
	}
	stats := Stats{
		Outages:       b.outageCount,
		LongestOutage: longest,
		UptimePercent: uptime,
	}
	if b.outageCount > 0 {
		stats.MeanRecoveryTime = b.totalDowntime / time.Duration(b.outageCount)
	}
	return stats
}

// transition moves the state machine. Callers must hold b.mu.
func (b *Breaker) transition(to State, reason string) {
	from := b.state
	if from == to {
		return
	}
	now := b.now()
	b.state = to
	b.stopTimers()

	switch to {
	case StateOpen:
		b.openedAt = now
		b.successes = 0
		if b.offlineSince.IsZero() {
			b.offlineSince = now
		}
		// Timer-driven recovery: a dependency with zero traffic can
		// still move to half_open.
		b.recoveryTimer = time.AfterFunc(b.cfg.RecoveryTimeout, b.onRecoveryTimeout)
	case StateHalfOpen:
		b.halfOpenAt = now
		b.successes = 0
		b.recoveryAttempts++
		b.halfOpenTimer = time.AfterFunc(b.cfg.HalfOpenTimeout, b.onHalfOpenTimeout)
	case StateClosed:
		b.failures = b.failures[:0]
		b.successes = 0
		if !b.offlineSince.IsZero() {
			outage := now.Sub(b.offlineSince)
			b.outageCount++
			b.totalDowntime += outage
			if outage > b.longestOutage {
				b.longestOutage = outage
			}
			b.offlineSince = time.Time{}
		}
	}

	event := Event{Peer: b.peer, From: from, To: to, Reason: reason, At: now}
	for _, obs := range b.observers {
		obs.OnStateChange(event)
	}
}

func (b *Breaker) onRecoveryTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		b.transition(StateHalfOpen, "recovery_timeout")
	}
}

func (b *Breaker) onHalfOpenTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.transition(StateOpen, "half_open_timeout")
	}
}

// pruneFailures drops failures older than the sliding window. Callers must
// hold b.mu.
func (b *Breaker) pruneFailures() {
	cutoff := b.now().Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}

func (b *Breaker) stopTimers() {
	if b.recoveryTimer != nil {
		b.recoveryTimer.Stop()
		b.recoveryTimer = nil
	}
	if b.halfOpenTimer != nil {
		b.halfOpenTimer.Stop()
		b.halfOpenTimer = nil
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
