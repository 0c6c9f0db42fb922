package authz

import (
	"github.com/dive-coalition/federation/internal/trust"
)

// Obligations are follow-up actions the caller must perform alongside an
// allow decision.
const (
	// ObligationCrossInstanceAudit marks every cross-instance access for
	// mandatory audit.
	ObligationCrossInstanceAudit = "audit:cross-instance-access"
	// ObligationCoalitionMarking requires coalition release markings when
	// subject and resource-owner countries differ.
	ObligationCoalitionMarking = "marking:coalition-release"
	// ObligationKeyServiceRequest requires a key-service request for
	// decrypt actions.
	ObligationKeyServiceRequest = "key-service:request"
	// ObligationEnhancedAudit applies to high-classification resources.
	ObligationEnhancedAudit = "audit:enhanced"
)

// computeObligations derives the obligation set for a decision.
// ownerCountry is the country of the resource's owning instance;
// highThreshold is the classification at or above which enhanced audit
// applies.
func computeObligations(req Request, ownerCountry string, crossInstance bool, highThreshold string) []string {
	var obligations []string
	if crossInstance {
		obligations = append(obligations, ObligationCrossInstanceAudit)
	}
	if ownerCountry != "" && req.Subject.CountryOfAffiliation != "" && req.Subject.CountryOfAffiliation != ownerCountry {
		obligations = append(obligations, ObligationCoalitionMarking)
	}
	if req.Action == "decrypt" {
		obligations = append(obligations, ObligationKeyServiceRequest)
	}
	if resourceRank, ok := trust.ClassificationRank(req.Resource.Classification); ok {
		if thresholdRank, ok := trust.ClassificationRank(highThreshold); ok && resourceRank >= thresholdRank {
			obligations = append(obligations, ObligationEnhancedAudit)
		}
	}
	return obligations
}
