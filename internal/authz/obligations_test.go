package authz

import (
	"testing"

	"github.com/dive-coalition/federation/internal/trust"
	"github.com/stretchr/testify/assert"
)

func TestComputeObligations(t *testing.T) {
	base := Request{
		Subject:  Subject{ID: "s", CountryOfAffiliation: "USA"},
		Resource: Resource{ID: "r", Classification: trust.ClassConfidential},
		Action:   "read",
	}

	tests := []struct {
		name          string
		mutate        func(*Request)
		ownerCountry  string
		crossInstance bool
		want          []string
	}{
		{
			name:         "same instance same country",
			ownerCountry: "USA",
		},
		{
			name:          "cross instance same country",
			ownerCountry:  "USA",
			crossInstance: true,
			want:          []string{ObligationCrossInstanceAudit},
		},
		{
			name:          "cross instance foreign owner",
			ownerCountry:  "GBR",
			crossInstance: true,
			want:          []string{ObligationCrossInstanceAudit, ObligationCoalitionMarking},
		},
		{
			name:         "decrypt action requests key service",
			ownerCountry: "USA",
			mutate:       func(r *Request) { r.Action = "decrypt" },
			want:         []string{ObligationKeyServiceRequest},
		},
		{
			name:         "high classification adds enhanced audit",
			ownerCountry: "USA",
			mutate:       func(r *Request) { r.Resource.Classification = trust.ClassTopSecret },
			want:         []string{ObligationEnhancedAudit},
		},
		{
			name:         "threshold classification adds enhanced audit",
			ownerCountry: "USA",
			mutate:       func(r *Request) { r.Resource.Classification = trust.ClassSecret },
			want:         []string{ObligationEnhancedAudit},
		},
		{
			name:         "unknown classification never enhanced",
			ownerCountry: "USA",
			mutate:       func(r *Request) { r.Resource.Classification = "COSMIC" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			got := computeObligations(req, tt.ownerCountry, tt.crossInstance, trust.ClassSecret)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}
