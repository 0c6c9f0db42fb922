package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTopology = `
instances:
  - id: usa-1
    code: USA
    base_url: https://federation.usa.example
    introspection_url: https://idp.usa.example/introspect
    signing_keys_url: https://idp.usa.example/certs
    trust_level: high
    country: USA
    enabled: true
  - id: gbr-1
    code: GBR
    base_url: https://federation.gbr.example
    trust_level: high
    country: GBR
    enabled: true
trust:
  - source: USA
    target: GBR
    trust_level: high
    max_classification: SECRET
    allowed_scopes: [documents:read]
    enabled: true
classification_mappings:
  GBR:
    SECRET: UK SECRET
`

func TestParseTopology(t *testing.T) {
	topo, err := ParseTopology([]byte(validTopology))
	require.NoError(t, err)

	require.Len(t, topo.Instances, 2)
	assert.Equal(t, "USA", topo.Instances[0].Code)
	require.Len(t, topo.Trust, 1)
	assert.Equal(t, "SECRET", topo.Trust[0].MaxClassification)
	assert.Equal(t, "UK SECRET", topo.ClassificationMappings["GBR"]["SECRET"])
}

func TestParseTopologyRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "not yaml",
			yaml:    "{{",
			wantErr: "parse topology",
		},
		{
			name:    "no instances",
			yaml:    "instances: []",
			wantErr: "invalid topology",
		},
		{
			name: "lowercase instance code",
			yaml: `
instances:
  - id: usa-1
    code: usa
    base_url: https://federation.usa.example
    trust_level: high
    country: USA
    enabled: true
`,
			wantErr: "invalid topology",
		},
		{
			name: "unknown trust level",
			yaml: `
instances:
  - id: usa-1
    code: USA
    base_url: https://federation.usa.example
    trust_level: absolute
    country: USA
    enabled: true
`,
			wantErr: "invalid topology",
		},
		{
			name: "self trust edge",
			yaml: `
instances:
  - id: usa-1
    code: USA
    base_url: https://federation.usa.example
    trust_level: high
    country: USA
    enabled: true
trust:
  - source: USA
    target: USA
    trust_level: high
    max_classification: SECRET
    enabled: true
`,
			wantErr: "invalid topology",
		},
		{
			name: "edge references unknown instance",
			yaml: `
instances:
  - id: usa-1
    code: USA
    base_url: https://federation.usa.example
    trust_level: high
    country: USA
    enabled: true
trust:
  - source: USA
    target: GBR
    trust_level: high
    max_classification: SECRET
    enabled: true
`,
			wantErr: "unknown target GBR",
		},
		{
			name: "duplicate instance code",
			yaml: `
instances:
  - id: usa-1
    code: USA
    base_url: https://federation.usa.example
    trust_level: high
    country: USA
    enabled: true
  - id: usa-2
    code: USA
    base_url: https://federation2.usa.example
    trust_level: high
    country: USA
    enabled: true
`,
			wantErr: "duplicate instance code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTopology([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
