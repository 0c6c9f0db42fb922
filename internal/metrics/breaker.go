package metrics

import (
	"github.com/dive-coalition/federation/internal/breaker"
)

// BreakerObserver mirrors circuit state transitions into Prometheus. It is
// subscribed at breaker construction time.
type BreakerObserver struct{}

func (BreakerObserver) OnStateChange(e breaker.Event) {
	BreakerTransitions.WithLabelValues(e.Peer, string(e.To), e.Reason).Inc()
	BreakerState.WithLabelValues(e.Peer).Set(stateValue(e.To))
}

func stateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}
