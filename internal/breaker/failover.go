package breaker

import (
	"sync"
	"time"
)

// Mode is the aggregate failover mode for one peer. It is derived from the
// circuit state except for maintenance, which always wins and is only
// entered and exited explicitly.
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeDegraded    Mode = "degraded"
	ModeOffline     Mode = "offline"
	ModeMaintenance Mode = "maintenance"
)

// FailoverState is the aggregate view of one peer's availability.
type FailoverState struct {
	Mode              Mode       `json:"mode"`
	Circuit           Snapshot   `json:"circuit"`
	OfflineSince      *time.Time `json:"offline_since,omitempty"`
	PolicyCacheValid  bool       `json:"policy_cache_valid"`
	PolicyCacheExpiry *time.Time `json:"policy_cache_expiry,omitempty"`
	RecoveryAttempts  int        `json:"recovery_attempts"`
}

// Controller wraps a Breaker with mode derivation and bookkeeping about
// whether cached policy decisions for the peer are still usable while it is
// unreachable.
type Controller struct {
	breaker *Breaker

	mu                sync.Mutex
	policyCacheExpiry time.Time
}

// NewController creates a failover controller over the given breaker.
func NewController(b *Breaker) *Controller {
	return &Controller{breaker: b}
}

// Breaker exposes the underlying circuit breaker.
func (c *Controller) Breaker() *Breaker { return c.breaker }

// MarkPolicyCached records that policy state for the peer is cached and
// valid until the given expiry.
func (c *Controller) MarkPolicyCached(expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policyCacheExpiry = expiry
}

// Mode derives the current failover mode.
func (c *Controller) Mode() Mode {
	if c.breaker.Maintenance() {
		return ModeMaintenance
	}
	switch c.breaker.State() {
	case StateOpen:
		return ModeOffline
	case StateHalfOpen:
		return ModeDegraded
	default:
		return ModeNormal
	}
}

// State returns the full aggregate failover state for the peer.
func (c *Controller) State() FailoverState {
	snap := c.breaker.Snapshot()
	c.mu.Lock()
	expiry := c.policyCacheExpiry
	c.mu.Unlock()

	state := FailoverState{
		Mode:             c.Mode(),
		Circuit:          snap,
		OfflineSince:     snap.OfflineSince,
		RecoveryAttempts: snap.RecoveryAttempts,
	}
	if !expiry.IsZero() {
		state.PolicyCacheValid = time.Now().Before(expiry)
		state.PolicyCacheExpiry = &expiry
	}
	return state
}
