package audit

import (
	"github.com/dive-coalition/federation/internal/breaker"
)

// CircuitObserver feeds breaker state transitions into the audit trail.
type CircuitObserver struct {
	logger *Logger
}

// NewCircuitObserver wraps an audit logger as a breaker observer.
func NewCircuitObserver(logger *Logger) *CircuitObserver {
	return &CircuitObserver{logger: logger}
}

func (o *CircuitObserver) OnStateChange(e breaker.Event) {
	o.logger.LogCircuitEvent(e.Peer, string(e.From), string(e.To), e.Reason, e.At)
}
