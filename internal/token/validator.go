package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dive-coalition/federation/internal/breaker"
	"github.com/dive-coalition/federation/internal/metrics"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/dive-coalition/federation/internal/trust"
	"github.com/golang-jwt/jwt/v5"
	"github.com/maypok86/otter"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
)

// Machine-readable error codes carried on inactive introspection results.
const (
	CodeNoBilateralTrust         = "no_bilateral_trust"
	CodeTokenInvalid             = "token_invalid"
	CodeCircuitOpen              = "circuit_open"
	CodeIntrospectionUnavailable = "introspection_unavailable"
)

// ValidatorConfig tunes the validator's caches and outbound calls.
type ValidatorConfig struct {
	// LocalInstance is the code of the instance this validator runs in.
	LocalInstance    string
	IntrospectionTTL time.Duration
	JWKSTTL          time.Duration
	RemoteTimeout    time.Duration
}

// ValidateRequest asks whether a bearer token presented as originating from
// OriginInstance is valid, and which scopes the trust edge permits.
type ValidateRequest struct {
	Token           string
	OriginInstance  string
	RequestedScopes []string
}

// Validator validates foreign-instance tokens: locally via signing-key
// verification when possible, remotely via introspection otherwise. Both
// paths funnel into one short-TTL result cache.
type Validator struct {
	cfg      ValidatorConfig
	registry *registry.Registry
	matrix   *trust.Matrix
	breakers *breaker.Registry
	client   *http.Client
	keys     *keyCache
	results  otter.Cache[uint64, IntrospectionResult]
	logger   zerolog.Logger
	now      func() time.Time
}

// NewValidator constructs a validator. A nil client uses a default with the
// configured remote timeout.
func NewValidator(cfg ValidatorConfig, reg *registry.Registry, matrix *trust.Matrix, breakers *breaker.Registry, client *http.Client, logger zerolog.Logger) *Validator {
	if cfg.IntrospectionTTL <= 0 || cfg.IntrospectionTTL > 30*time.Second {
		cfg.IntrospectionTTL = 30 * time.Second
	}
	if cfg.JWKSTTL <= 0 {
		cfg.JWKSTTL = time.Hour
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RemoteTimeout}
	}
	results, err := otter.MustBuilder[uint64, IntrospectionResult](4096).
		WithTTL(cfg.IntrospectionTTL).
		Build()
	if err != nil {
		panic("token: failed to create introspection cache: " + err.Error())
	}
	return &Validator{
		cfg:      cfg,
		registry: reg,
		matrix:   matrix,
		breakers: breakers,
		client:   client,
		keys:     newKeyCache(client, cfg.JWKSTTL),
		results:  results,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate runs the full validation pipeline for a foreign token. It never
// returns an error: every failure mode is expressed as an inactive result
// with a machine-readable code, because deny is the normal answer here.
func (v *Validator) Validate(ctx context.Context, req ValidateRequest) IntrospectionResult {
	start := v.now()

	// Trust gate: without a requesting→origin edge no validation work, and
	// in particular no network call, is permitted.
	edge, ok := v.matrix.VerifyTrust(v.cfg.LocalInstance, req.OriginInstance)
	if !ok {
		v.logger.Debug().
			Str("origin", req.OriginInstance).
			Msg("token validation refused: no bilateral trust")
		return IntrospectionResult{
			Active:         false,
			OriginInstance: req.OriginInstance,
			ValidatedAt:    start,
			TrustVerified:  false,
			Error:          CodeNoBilateralTrust,
		}
	}

	key := v.fingerprint(req.Token, req.OriginInstance)
	if cached, ok := v.results.Get(key); ok {
		metrics.TokenCacheHits.Inc()
		cached.CacheHit = true
		cached.ScopesAllowed = edge.FilterScopes(req.RequestedScopes)
		return cached
	}
	metrics.TokenCacheMisses.Inc()

	result := v.validateUncached(ctx, req, edge)
	result.ValidatedAt = start
	result.LatencyMs = v.now().Sub(start).Milliseconds()
	metrics.IntrospectionLatency.Observe(float64(result.LatencyMs) / 1000)

	v.results.Set(key, result)
	result.ScopesAllowed = edge.FilterScopes(req.RequestedScopes)
	return result
}

func (v *Validator) validateUncached(ctx context.Context, req ValidateRequest, edge trust.Edge) IntrospectionResult {
	origin, ok := v.registry.Resolve(req.OriginInstance)
	if !ok {
		// VerifyTrust already resolved the instance; losing it here means
		// the registry changed under us. Fail closed either way.
		return IntrospectionResult{
			Active:         false,
			OriginInstance: req.OriginInstance,
			TrustVerified:  false,
			Error:          CodeNoBilateralTrust,
		}
	}

	// Local verification first: it keeps the origin instance off the
	// availability critical path.
	if origin.SigningKeysURL != "" {
		claims, err := v.validateLocal(ctx, origin, req.Token)
		if err == nil {
			return IntrospectionResult{
				Active:         true,
				Claims:         claims,
				OriginInstance: req.OriginInstance,
				TrustVerified:  true,
			}
		}
		if isTokenRejection(err) {
			// The signature or lifetime check itself failed. Introspection
			// cannot resurrect a bad token, so stop here.
			v.logger.Debug().Err(err).Str("origin", req.OriginInstance).Msg("local token validation rejected token")
			return IntrospectionResult{
				Active:         false,
				OriginInstance: req.OriginInstance,
				TrustVerified:  true,
				Error:          CodeTokenInvalid,
			}
		}
		v.logger.Debug().Err(err).Str("origin", req.OriginInstance).Msg("local validation impossible, falling back to introspection")
	}

	return v.validateRemote(ctx, origin, req)
}

// validateLocal verifies the token signature against the origin's published
// signing keys and checks its lifetime.
func (v *Validator) validateLocal(ctx context.Context, origin registry.Instance, rawToken string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(rawToken, &coalitionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no kid header", errKeyNotFound)
		}
		return v.keys.keyFor(ctx, origin.SigningKeysURL, kid)
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*coalitionClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims.normalize(), nil
}

// validateRemote introspects the token at the origin instance, gated by the
// origin's circuit breaker.
func (v *Validator) validateRemote(ctx context.Context, origin registry.Instance, req ValidateRequest) IntrospectionResult {
	if origin.IntrospectionURL == "" {
		return IntrospectionResult{
			Active:         false,
			OriginInstance: origin.Code,
			TrustVerified:  true,
			Error:          CodeIntrospectionUnavailable,
		}
	}

	ctrl := v.breakers.For(origin.Code)
	if !ctrl.Breaker().ShouldAllowRequest() {
		v.logger.Warn().
			Str("origin", origin.Code).
			Str("mode", string(ctrl.Mode())).
			Msg("introspection blocked: circuit not accepting calls")
		return IntrospectionResult{
			Active:         false,
			OriginInstance: origin.Code,
			TrustVerified:  true,
			Error:          CodeCircuitOpen,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, v.cfg.RemoteTimeout)
	defer cancel()
	resp, err := v.introspectRemote(callCtx, origin.IntrospectionURL, req.Token, v.cfg.LocalInstance)
	if err != nil {
		ctrl.Breaker().RecordFailure()
		v.logger.Warn().Err(err).Str("origin", origin.Code).Msg("remote introspection failed")
		return IntrospectionResult{
			Active:         false,
			OriginInstance: origin.Code,
			TrustVerified:  true,
			Error:          CodeIntrospectionUnavailable,
		}
	}
	ctrl.Breaker().RecordSuccess()

	result := IntrospectionResult{
		Active:         resp.Active,
		OriginInstance: origin.Code,
		TrustVerified:  true,
	}
	if resp.Active {
		result.Claims = resp.normalize()
	} else {
		result.Error = CodeTokenInvalid
	}
	return result
}

// fingerprint hashes a short token prefix with origin and requester. The
// full token never enters the cache key so cache contents cannot leak
// credentials.
func (v *Validator) fingerprint(rawToken, origin string) uint64 {
	prefix := rawToken
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	h := xxh3.New()
	_, _ = h.WriteString(prefix)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(strconv.Itoa(len(rawToken)))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(origin)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(v.cfg.LocalInstance)
	return h.Sum64()
}

// isTokenRejection distinguishes "the token is bad" from "we could not try".
func isTokenRejection(err error) bool {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return true
	}
	return false
}
