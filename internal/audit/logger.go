// Package audit emits the structured audit record for every cross-instance
// authorization decision and circuit event.
package audit

import (
	"time"

	"github.com/rs/zerolog"
)

// Decision is the audit record of one cross-instance authorization decision.
type Decision struct {
	DecisionID     string    `json:"decision_id"`
	RequestID      string    `json:"request_id,omitempty"`
	SubjectID      string    `json:"subject_id"`
	SubjectCountry string    `json:"subject_country,omitempty"`
	ResourceID     string    `json:"resource_id"`
	OwnerInstance  string    `json:"owner_instance"`
	LocalInstance  string    `json:"local_instance"`
	Action         string    `json:"action"`
	Allow          bool      `json:"allow"`
	Reason         string    `json:"reason"`
	Code           string    `json:"code,omitempty"`
	Obligations    []string  `json:"obligations,omitempty"`
	CacheHit       bool      `json:"cache_hit"`
	Timestamp      time.Time `json:"timestamp"`
}

// Logger writes audit records as structured log events. Audit output is
// append-only operator evidence; it never influences the decision itself.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger tagged with the audit component field.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

// LogDecision records an authorization decision.
func (l *Logger) LogDecision(d Decision) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	event := l.logger.Info()
	if !d.Allow {
		event = l.logger.Warn()
	}
	event.
		Str("decision_id", d.DecisionID).
		Str("request_id", d.RequestID).
		Str("subject_id", d.SubjectID).
		Str("subject_country", d.SubjectCountry).
		Str("resource_id", d.ResourceID).
		Str("owner_instance", d.OwnerInstance).
		Str("local_instance", d.LocalInstance).
		Str("action", d.Action).
		Bool("allow", d.Allow).
		Str("reason", d.Reason).
		Str("code", d.Code).
		Strs("obligations", d.Obligations).
		Bool("cache_hit", d.CacheHit).
		Time("timestamp", d.Timestamp).
		Msg("authorization decision")
}

// LogCircuitEvent records a circuit state transition so operators can tell
// "partner is down" apart from "partner said no" when reading the trail.
func (l *Logger) LogCircuitEvent(peer, from, to, reason string, at time.Time) {
	l.logger.Warn().
		Str("peer", peer).
		Str("from", from).
		Str("to", to).
		Str("reason", reason).
		Time("at", at).
		Msg("circuit state change")
}
