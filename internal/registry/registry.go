// Package registry holds the table of known federation peer instances.
package registry

import (
	"strings"

	"github.com/dive-coalition/federation/internal/config"
	"github.com/puzpuzpuz/xsync/v4"
)

// Instance describes one peer instance of the federation. Instances are
// created at startup from the topology file and never mutated at runtime.
type Instance struct {
	ID               string
	Code             string
	BaseURL          string
	IntrospectionURL string
	SigningKeysURL   string
	TrustLevel       TrustLevel
	Country          string
	Enabled          bool
}

// TrustLevel is the declared trust tier of an instance or trust edge.
type TrustLevel string

const (
	TrustHigh   TrustLevel = "high"
	TrustMedium TrustLevel = "medium"
	TrustLow    TrustLevel = "low"
)

// ParseTrustLevel normalizes a configured trust level string. Unknown values
// degrade to low rather than failing, so a typo in configuration narrows
// rather than widens what a peer may do.
func ParseTrustLevel(s string) TrustLevel {
	switch TrustLevel(strings.ToLower(s)) {
	case TrustHigh:
		return TrustHigh
	case TrustMedium:
		return TrustMedium
	default:
		return TrustLow
	}
}

// Registry resolves instance codes to instance configuration. It is
// read-mostly: the table is populated at construction and safe for
// concurrent lookup from in-flight requests.
type Registry struct {
	instances *xsync.Map[string, Instance]
}

// New builds a registry from the parsed topology.
func New(topo *config.Topology) *Registry {
	r := &Registry{instances: xsync.NewMap[string, Instance]()}
	for _, inst := range topo.Instances {
		r.instances.Store(inst.Code, Instance{
			ID:               inst.ID,
			Code:             inst.Code,
			BaseURL:          strings.TrimRight(inst.BaseURL, "/"),
			IntrospectionURL: inst.IntrospectionURL,
			SigningKeysURL:   inst.SigningKeysURL,
			TrustLevel:       ParseTrustLevel(inst.TrustLevel),
			Country:          inst.Country,
			Enabled:          inst.Enabled,
		})
	}
	return r
}

// Resolve returns the instance with the given code. An unknown or disabled
// instance returns ok=false; callers must treat both identically to "no
// trust".
func (r *Registry) Resolve(code string) (Instance, bool) {
	inst, ok := r.instances.Load(code)
	if !ok || !inst.Enabled {
		return Instance{}, false
	}
	return inst, true
}

// List returns all enabled instances in no particular order.
func (r *Registry) List() []Instance {
	var out []Instance
	r.instances.Range(func(_ string, inst Instance) bool {
		if inst.Enabled {
			out = append(out, inst)
		}
		return true
	})
	return out
}
