package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all federation-core metrics
const namespace = "federation"

// Registry is the Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// BreakerState tracks the circuit state per peer (0=closed, 1=half_open, 2=open)
var BreakerState = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Circuit breaker state per peer (0=closed, 1=half_open, 2=open)",
	},
	[]string{"peer"},
)

// BreakerTransitions counts circuit state transitions per peer
var BreakerTransitions = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breaker_transitions_total",
		Help:      "Total circuit breaker state transitions",
	},
	[]string{"peer", "to", "reason"},
)

// EvaluationDuration tracks cross-instance authorization evaluation latency
var EvaluationDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "authz_evaluation_duration_seconds",
		Help:      "Duration of cross-instance authorization evaluations",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	},
	[]string{"decision"},
)

// AuthzCacheHits counts authorization decision cache hits
var AuthzCacheHits = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authz_cache_hits_total",
		Help:      "Total authorization decision cache hits",
	},
)

// AuthzCacheMisses counts authorization decision cache misses
var AuthzCacheMisses = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authz_cache_misses_total",
		Help:      "Total authorization decision cache misses",
	},
)

// RemoteEvaluations counts remote policy evaluations by peer and outcome
var RemoteEvaluations = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_evaluations_total",
		Help:      "Total remote policy evaluations by outcome",
	},
	[]string{"peer", "outcome"},
)

// TokenCacheHits counts introspection cache hits
var TokenCacheHits = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "introspection_cache_hits_total",
		Help:      "Total introspection result cache hits",
	},
)

// TokenCacheMisses counts introspection cache misses
var TokenCacheMisses = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "introspection_cache_misses_total",
		Help:      "Total introspection result cache misses",
	},
)

// IntrospectionLatency tracks token validation latency across both paths
var IntrospectionLatency = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "introspection_duration_seconds",
		Help:      "Duration of token validation (local or remote path)",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	},
)

// TokenExchanges counts exchange-token mints by outcome
var TokenExchanges = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_exchanges_total",
		Help:      "Total exchange token mints by outcome",
	},
	[]string{"outcome"},
)
