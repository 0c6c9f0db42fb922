package breaker

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry lazily creates one failover controller per peer instance. It is
// safe for concurrent use from many in-flight requests.
type Registry struct {
	cfg       Config
	observers []Observer
	peers     *xsync.Map[string, *Controller]
}

// NewRegistry creates a registry. Observers are attached to every breaker it
// creates.
func NewRegistry(cfg Config, observers ...Observer) *Registry {
	return &Registry{
		cfg:       cfg,
		observers: observers,
		peers:     xsync.NewMap[string, *Controller](),
	}
}

// For returns the controller for the given peer, creating it on first use.
func (r *Registry) For(peer string) *Controller {
	if ctrl, ok := r.peers.Load(peer); ok {
		return ctrl
	}
	ctrl, _ := r.peers.LoadOrCompute(peer, func() (*Controller, bool) {
		return NewController(New(peer, r.cfg, r.observers...)), false
	})
	return ctrl
}

// Range iterates over all known controllers.
func (r *Registry) Range(fn func(peer string, ctrl *Controller) bool) {
	r.peers.Range(fn)
}

// Stop cancels timers on every breaker. Used at shutdown.
func (r *Registry) Stop() {
	r.peers.Range(func(_ string, ctrl *Controller) bool {
		ctrl.Breaker().Stop()
		return true
	})
}
