package trust

import (
	"testing"
	"time"

	"github.com/dive-coalition/federation/internal/config"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMatrix(t *testing.T, edges []config.TopologyTrust) *Matrix {
	t.Helper()
	topo := &config.Topology{
		Instances: []config.TopologyInstance{
			{ID: "usa-hub", Code: "USA", BaseURL: "https://usa.example", TrustLevel: "high", Country: "USA", Enabled: true},
			{ID: "gbr-spoke", Code: "GBR", BaseURL: "https://gbr.example", TrustLevel: "high", Country: "GBR", Enabled: true},
			{ID: "fra-spoke", Code: "FRA", BaseURL: "https://fra.example", TrustLevel: "medium", Country: "FRA", Enabled: false},
		},
		Trust: edges,
	}
	return NewMatrix(NewStaticStore(topo), registry.New(topo))
}

func TestVerifyTrustDirectional(t *testing.T) {
	m := testMatrix(t, []config.TopologyTrust{
		{Source: "USA", Target: "GBR", TrustLevel: "high", MaxClassification: ClassTopSecret, AllowedScopes: []string{"read"}, Enabled: true},
	})

	edge, ok := m.VerifyTrust("USA", "GBR")
	require.True(t, ok)
	assert.Equal(t, ClassTopSecret, edge.MaxClassification)

	_, ok = m.VerifyTrust("GBR", "USA")
	assert.False(t, ok, "trust is directional; reverse edge must be absent")
}

func TestVerifyTrustAbsence(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	m := testMatrix(t, []config.TopologyTrust{
		{Source: "USA", Target: "GBR", TrustLevel: "high", MaxClassification: ClassSecret, Enabled: false},
		{Source: "GBR", Target: "USA", TrustLevel: "high", MaxClassification: ClassSecret, Enabled: true, ExpiresAt: &expired},
		{Source: "USA", Target: "FRA", TrustLevel: "medium", MaxClassification: ClassSecret, Enabled: true},
	})

	_, ok := m.VerifyTrust("USA", "GBR")
	assert.False(t, ok, "disabled edge is absent")

	_, ok = m.VerifyTrust("GBR", "USA")
	assert.False(t, ok, "expired edge is absent")

	_, ok = m.VerifyTrust("USA", "FRA")
	assert.False(t, ok, "edge to a disabled instance is absent")

	_, ok = m.VerifyTrust("USA", "DEU")
	assert.False(t, ok, "edge to an unknown instance is absent")
}

func TestListTrustsFor(t *testing.T) {
	expired := time.Now().Add(-time.Minute)
	m := testMatrix(t, []config.TopologyTrust{
		{Source: "USA", Target: "GBR", TrustLevel: "high", MaxClassification: ClassTopSecret, Enabled: true},
		{Source: "USA", Target: "FRA", TrustLevel: "medium", MaxClassification: ClassSecret, Enabled: true, ExpiresAt: &expired},
		{Source: "GBR", Target: "USA", TrustLevel: "high", MaxClassification: ClassSecret, Enabled: true},
	})

	// Only outbound edges are listed. GBR trusting USA does not let USA
	// act, and the expired FRA edge is gone.
	edges := m.ListTrustsFor("USA")
	require.Len(t, edges, 1)
	assert.Equal(t, "USA", edges[0].SourceInstance)
	assert.Equal(t, "GBR", edges[0].TargetInstance)

	inbound := m.ListTrustsFor("FRA")
	assert.Empty(t, inbound)
}

func TestFilterScopes(t *testing.T) {
	edge := Edge{AllowedScopes: []string{"read", "search"}}

	tests := []struct {
		name      string
		requested []string
		want      []string
	}{
		{"empty request yields full allowed set", nil, []string{"read", "search"}},
		{"subset preserved", []string{"read"}, []string{"read"}},
		{"broader request clipped", []string{"read", "write", "admin"}, []string{"read"}},
		{"disjoint request yields empty", []string{"write"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, edge.FilterScopes(tt.requested))
		})
	}
}

func TestExceedsCeiling(t *testing.T) {
	tests := []struct {
		resource string
		ceiling  string
		want     bool
	}{
		{ClassSecret, ClassTopSecret, false},
		{ClassTopSecret, ClassSecret, true},
		{ClassSecret, ClassSecret, false},
		{"COSMIC", ClassTopSecret, true},  // unknown resource label fails closed
		{ClassRestricted, "BOGUS", true},  // unknown ceiling admits nothing above UNCLASSIFIED
		{ClassUnclassified, "BOGUS", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExceedsCeiling(tt.resource, tt.ceiling), "%s vs %s", tt.resource, tt.ceiling)
	}
}

func TestTranslator(t *testing.T) {
	tr := NewTranslator(map[string]map[string]string{
		"GBR": {ClassSecret: "UK SECRET", ClassTopSecret: "UK TOP SECRET"},
	})

	translated, mapped := tr.Translate("GBR", ClassSecret)
	assert.True(t, mapped)
	assert.Equal(t, "UK SECRET", translated)

	// unmapped labels pass through unchanged
	translated, mapped = tr.Translate("GBR", ClassRestricted)
	assert.False(t, mapped)
	assert.Equal(t, ClassRestricted, translated)

	translated, mapped = tr.Translate("FRA", ClassSecret)
	assert.False(t, mapped)
	assert.Equal(t, ClassSecret, translated)
}
