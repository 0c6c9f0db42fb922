// Package authz evaluates cross-instance authorization requests: local
// policy, attribute translation, breaker-gated remote policy, fail-closed
// merge, obligations and audit trail.
package authz

import (
	"errors"
	"time"

	"github.com/dive-coalition/federation/internal/policy"
	"github.com/dive-coalition/federation/internal/trust"
)

// Error taxonomy for cross-instance evaluation. Every one of these resolves
// to allow=false: an inability to positively confirm trust, validity or
// remote approval is never an implicit allow.
var (
	ErrNoBilateralTrust            = errors.New("no bilateral trust")
	ErrClassificationExceedsTrust  = errors.New("resource classification exceeds trust ceiling")
	ErrRemoteEvaluationUnavailable = errors.New("remote evaluation unavailable")
	ErrLocalEvaluationUnavailable  = errors.New("local evaluation unavailable")
)

// Machine-readable codes carried on structured denials.
const (
	CodeNoBilateralTrust            = "no_bilateral_trust"
	CodeClassificationExceedsTrust  = "classification_exceeds_trust"
	CodeLocalDeny                   = "local_deny"
	CodeRemoteDeny                  = "remote_deny"
	CodeRemoteUnavailable           = "remote_evaluation_unavailable"
	CodeLocalUnavailable            = "local_evaluation_unavailable"
	CodeCircuitOpen                 = "circuit_open"
)

// Subject is the normalized requesting subject.
type Subject struct {
	ID                   string   `json:"id"`
	UniqueID             string   `json:"uniqueID,omitempty"`
	Clearance            string   `json:"clearance"`
	CountryOfAffiliation string   `json:"countryOfAffiliation"`
	CommunityOfInterest  []string `json:"acpCOI,omitempty"`
	OrganizationType     string   `json:"organizationType,omitempty"`
}

// Resource identifies the thing being accessed and where it lives.
type Resource struct {
	ID             string `json:"id"`
	OwnerInstance  string `json:"ownerInstance"`
	Classification string `json:"classification"`
}

// Request is one authorization question.
type Request struct {
	Subject     Subject
	Resource    Resource
	Action      string
	RequestID   string
	BearerToken string
}

// Translation records which attribute translation was applied before remote
// evaluation.
type Translation struct {
	TargetInstance string `json:"target_instance"`
	From           string `json:"from"`
	To             string `json:"to"`
	Mapped         bool   `json:"mapped"`
}

// Details carries the intermediate verdicts behind a merged decision.
type Details struct {
	LocalDecision        *policy.Decision `json:"local_decision,omitempty"`
	RemoteDecision       *policy.Decision `json:"remote_decision,omitempty"`
	AttributeTranslation *Translation     `json:"attribute_translation,omitempty"`
	BilateralTrust       *trust.Edge      `json:"bilateral_trust,omitempty"`
	CacheHit             bool             `json:"cache_hit"`
}

// AuditStep is one timestamped step of the evaluation trail.
type AuditStep struct {
	Step   string    `json:"step"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Result is the merged cross-instance authorization decision.
type Result struct {
	DecisionID      string      `json:"decision_id"`
	Allow           bool        `json:"allow"`
	Reason          string      `json:"reason"`
	Code            string      `json:"code,omitempty"`
	Details         Details     `json:"evaluation_details"`
	Obligations     []string    `json:"obligations,omitempty"`
	ExecutionTimeMs int64       `json:"execution_time_ms"`
	AuditTrail      []AuditStep `json:"audit_trail"`
}
