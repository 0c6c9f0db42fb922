// Package trust maintains the directional bilateral-trust matrix between
// federation instances and the classification vocabulary that rides on it.
package trust

import (
	"time"

	"github.com/dive-coalition/federation/internal/config"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/puzpuzpuz/xsync/v4"
)

// Edge is a directional bilateral-trust relationship from SourceInstance to
// TargetInstance. Trust is never symmetric: the presence of A→B says nothing
// about B→A.
type Edge struct {
	SourceInstance    string
	TargetInstance    string
	TrustLevel        registry.TrustLevel
	MaxClassification string
	AllowedScopes     []string
	Enabled           bool
	EstablishedAt     time.Time
	ExpiresAt         *time.Time
}

// Expired reports whether the edge has passed its expiry at the given time.
// Edges without an expiry never expire.
func (e Edge) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// AllowsScope reports whether the edge permits the given scope.
func (e Edge) AllowsScope(scope string) bool {
	for _, allowed := range e.AllowedScopes {
		if allowed == scope {
			return true
		}
	}
	return false
}

// FilterScopes intersects the requested scopes with the edge's allowed set.
// An empty request yields the full allowed set.
func (e Edge) FilterScopes(requested []string) []string {
	if len(requested) == 0 {
		out := make([]string, len(e.AllowedScopes))
		copy(out, e.AllowedScopes)
		return out
	}
	out := make([]string, 0, len(requested))
	for _, scope := range requested {
		if e.AllowsScope(scope) {
			out = append(out, scope)
		}
	}
	return out
}

// Store is the injectable source of trust edges. The static implementation
// below is backed by the topology file; the policy-distribution pipeline can
// provide a refreshing implementation without touching callers.
type Store interface {
	// Lookup returns the raw edge for source→target, enabled or not,
	// expired or not. Absence is a normal outcome, not an error.
	Lookup(source, target string) (Edge, bool)
	// ListFor returns every edge originating at the given instance.
	ListFor(instance string) []Edge
}

// StaticStore is a Store backed by the startup topology.
type StaticStore struct {
	edges *xsync.Map[string, Edge]
}

// NewStaticStore builds a static trust store from the parsed topology.
func NewStaticStore(topo *config.Topology) *StaticStore {
	s := &StaticStore{edges: xsync.NewMap[string, Edge]()}
	for _, t := range topo.Trust {
		s.edges.Store(edgeKey(t.Source, t.Target), Edge{
			SourceInstance:    t.Source,
			TargetInstance:    t.Target,
			TrustLevel:        registry.ParseTrustLevel(t.TrustLevel),
			MaxClassification: t.MaxClassification,
			AllowedScopes:     append([]string(nil), t.AllowedScopes...),
			Enabled:           t.Enabled,
			EstablishedAt:     t.EstablishedAt,
			ExpiresAt:         t.ExpiresAt,
		})
	}
	return s
}

func (s *StaticStore) Lookup(source, target string) (Edge, bool) {
	return s.edges.Load(edgeKey(source, target))
}

// ListFor returns the edges originating at the given instance. Inbound
// edges are the remote side's concern; an instance can only act on trust
// it is the source of.
func (s *StaticStore) ListFor(instance string) []Edge {
	var out []Edge
	s.edges.Range(func(_ string, edge Edge) bool {
		if edge.SourceInstance == instance {
			out = append(out, edge)
		}
		return true
	})
	return out
}

func edgeKey(source, target string) string {
	return source + "->" + target
}

// Matrix answers directional trust questions against a Store, applying the
// enabled flag and expiry. It also resolves instances so that an unknown or
// disabled peer reads as "no trust".
type Matrix struct {
	store    Store
	registry *registry.Registry
	now      func() time.Time
}

// NewMatrix creates a trust matrix over the given store and registry.
func NewMatrix(store Store, reg *registry.Registry) *Matrix {
	return &Matrix{store: store, registry: reg, now: time.Now}
}

// VerifyTrust returns the effective trust edge source→target. Absence
// (ok=false) covers: no edge, disabled edge, expired edge, unknown or
// disabled source or target instance.
func (m *Matrix) VerifyTrust(source, target string) (Edge, bool) {
	if _, ok := m.registry.Resolve(source); !ok {
		return Edge{}, false
	}
	if _, ok := m.registry.Resolve(target); !ok {
		return Edge{}, false
	}
	edge, ok := m.store.Lookup(source, target)
	if !ok || !edge.Enabled || edge.Expired(m.now()) {
		return Edge{}, false
	}
	return edge, true
}

// ListTrustsFor returns the currently effective edges the given instance
// can act on, meaning those it is the source of. Disabled and expired edges
// are filtered out.
func (m *Matrix) ListTrustsFor(instance string) []Edge {
	now := m.now()
	all := m.store.ListFor(instance)
	out := make([]Edge, 0, len(all))
	for _, edge := range all {
		if edge.Enabled && !edge.Expired(now) {
			out = append(out, edge)
		}
	}
	return out
}
