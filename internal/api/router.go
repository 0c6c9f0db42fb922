package api

import (
	"crypto/rsa"
	"net/http"
	"sort"
	"strings"

	"github.com/dive-coalition/federation/internal/api/handlers"
	"github.com/dive-coalition/federation/internal/api/middleware"
	"github.com/dive-coalition/federation/internal/authz"
	"github.com/dive-coalition/federation/internal/breaker"
	"github.com/dive-coalition/federation/internal/config"
	"github.com/dive-coalition/federation/internal/metrics"
	"github.com/dive-coalition/federation/internal/policy"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/dive-coalition/federation/internal/token"
	"github.com/dive-coalition/federation/internal/trust"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps carries the wired collaborators the router serves. Everything is
// constructed in main; the router only routes.
type Deps struct {
	Config      config.Config
	Logger      zerolog.Logger
	Registry    *registry.Registry
	Matrix      *trust.Matrix
	Evaluator   *authz.Evaluator
	Validator   *token.Validator
	Exchanger   *token.Exchanger
	Breakers    *breaker.Registry
	LocalPolicy *policy.LocalClient
	VerifyKey   *rsa.PublicKey
	Version     string
	GitCommit   string
}

// NewRouter builds the HTTP surface: peer-facing federation endpoints,
// the client-facing authorization endpoint, operator endpoints and probes.
// The returned cleanup stops the rate limiter's background eviction and
// must run on shutdown.
func NewRouter(d Deps) (http.Handler, func()) {
	env := d.Config.Environment

	fed := &handlers.FederationHandler{
		Local:         d.LocalPolicy,
		Exchanger:     d.Exchanger,
		Validator:     d.Validator,
		Matrix:        d.Matrix,
		Registry:      d.Registry,
		VerifyKey:     d.VerifyKey,
		LocalInstance: d.Config.Instance.Code,
		Env:           env,
	}
	authzHandler := &handlers.AuthzHandler{Evaluator: d.Evaluator, Env: env}
	breakersHandler := &handlers.BreakersHandler{Breakers: d.Breakers, Env: env}
	checker := handlers.NewHealthChecker(nil, d.Config.Policy.EngineURL, d.Breakers,
		d.Config.Instance.Code, d.Version, d.GitCommit)

	peerAuth := middleware.PeerAuth(d.Validator, env)
	adminTier := middleware.WithRateLimitTierHandler(middleware.TierAdmin)

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", checker.Readyz())
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/api/federation/health", checker.Health())

	mux.Handle("/api/federation/evaluate-policy", methodMux(map[string]http.Handler{
		http.MethodPost: peerAuth(http.HandlerFunc(fed.EvaluatePolicy)),
	}))
	mux.Handle("/api/federation/token-exchange", methodMux(map[string]http.Handler{
		http.MethodPost: peerAuth(http.HandlerFunc(fed.TokenExchange)),
	}))
	mux.Handle("/api/federation/introspect", methodMux(map[string]http.Handler{
		http.MethodPost: peerAuth(http.HandlerFunc(fed.Introspect)),
	}))
	mux.Handle("/api/federation/instances", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(fed.Instances),
	}))
	mux.Handle("/api/federation/trusts", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(fed.Trusts),
	}))
	mux.Handle("/api/federation/trusts/{source}/{target}", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(fed.TrustEdge),
	}))

	mux.Handle("/api/authz/evaluate", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authzHandler.Evaluate),
	}))

	mux.Handle("/api/federation/breakers", methodMux(map[string]http.Handler{
		http.MethodGet: adminTier(http.HandlerFunc(breakersHandler.List)),
	}))
	mux.Handle("/api/federation/breakers/{peer}", methodMux(map[string]http.Handler{
		http.MethodGet: adminTier(http.HandlerFunc(breakersHandler.Get)),
	}))
	mux.Handle("/api/federation/breakers/{peer}/maintenance", methodMux(map[string]http.Handler{
		http.MethodPost: adminTier(http.HandlerFunc(breakersHandler.Maintenance)),
	}))

	limiter := middleware.NewRateLimiter(d.Config.RateLimit)

	var handler http.Handler = mux
	handler = middleware.RequestLogging(d.Logger)(handler)
	handler = limiter.Middleware(handler)
	handler = middleware.RequestSize(middleware.MaxBodySize)(handler)
	if d.Config.Tracing.Enabled {
		handler = middleware.Tracing(handler)
	}
	handler = middleware.SecurityHeaders(env == "production")(handler)
	handler = middleware.CorrelationID(d.Logger)(handler)
	return handler, limiter.Stop
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
