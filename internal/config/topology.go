package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Topology is the on-disk description of the federation: every known peer
// instance, every directional trust edge, and the per-instance classification
// vocabularies. It is loaded once at startup; refreshing it at runtime is the
// job of the external policy-distribution pipeline.
type Topology struct {
	Instances              []TopologyInstance           `yaml:"instances" validate:"required,min=1,dive"`
	Trust                  []TopologyTrust              `yaml:"trust" validate:"dive"`
	ClassificationMappings map[string]map[string]string `yaml:"classification_mappings"`
}

type TopologyInstance struct {
	ID               string `yaml:"id" validate:"required"`
	Code             string `yaml:"code" validate:"required,uppercase,len=3"`
	BaseURL          string `yaml:"base_url" validate:"required,url"`
	IntrospectionURL string `yaml:"introspection_url" validate:"omitempty,url"`
	SigningKeysURL   string `yaml:"signing_keys_url" validate:"omitempty,url"`
	TrustLevel       string `yaml:"trust_level" validate:"required,oneof=high medium low"`
	Country          string `yaml:"country" validate:"required"`
	Enabled          bool   `yaml:"enabled"`
}

type TopologyTrust struct {
	Source            string     `yaml:"source" validate:"required"`
	Target            string     `yaml:"target" validate:"required,nefield=Source"`
	TrustLevel        string     `yaml:"trust_level" validate:"required,oneof=high medium low"`
	MaxClassification string     `yaml:"max_classification" validate:"required"`
	AllowedScopes     []string   `yaml:"allowed_scopes"`
	Enabled           bool       `yaml:"enabled"`
	EstablishedAt     time.Time  `yaml:"established_at"`
	ExpiresAt         *time.Time `yaml:"expires_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadTopology reads and validates the federation topology file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}
	return ParseTopology(data)
}

// ParseTopology parses and validates topology YAML.
func ParseTopology(data []byte) (*Topology, error) {
	var topo Topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	if err := validate.Struct(&topo); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}

	codes := make(map[string]bool, len(topo.Instances))
	for _, inst := range topo.Instances {
		if codes[inst.Code] {
			return nil, fmt.Errorf("invalid topology: duplicate instance code %s", inst.Code)
		}
		codes[inst.Code] = true
	}
	for _, edge := range topo.Trust {
		if !codes[edge.Source] {
			return nil, fmt.Errorf("invalid topology: trust edge references unknown source %s", edge.Source)
		}
		if !codes[edge.Target] {
			return nil, fmt.Errorf("invalid topology: trust edge references unknown target %s", edge.Target)
		}
	}
	return &topo, nil
}
