package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dive-coalition/federation/internal/audit"
	"github.com/dive-coalition/federation/internal/breaker"
	"github.com/dive-coalition/federation/internal/metrics"
	"github.com/dive-coalition/federation/internal/policy"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/dive-coalition/federation/internal/trust"
	"github.com/maypok86/otter"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
)

// Config tunes the evaluator.
type Config struct {
	// LocalInstance is the code of the instance this evaluator runs in.
	LocalInstance string
	// HighClassification is the level at or above which the enhanced-audit
	// obligation applies.
	HighClassification string
	// CacheTTL bounds decision staleness. Clamped to 60s, deliberately
	// shorter than any credential's minimum lifetime.
	CacheTTL      time.Duration
	RemoteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.HighClassification == "" {
		c.HighClassification = trust.ClassSecret
	}
	if c.CacheTTL <= 0 || c.CacheTTL > time.Minute {
		c.CacheTTL = time.Minute
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = 10 * time.Second
	}
	return c
}

// Evaluator orchestrates cross-instance authorization: trust, translation,
// local and remote policy, fail-closed merge, obligations, audit.
type Evaluator struct {
	cfg        Config
	registry   *registry.Registry
	matrix     *trust.Matrix
	translator *trust.Translator
	breakers   *breaker.Registry
	local      *policy.LocalClient
	remote     *policy.RemoteClient
	auditLog   *audit.Logger
	cache      otter.Cache[uint64, Result]
	logger     zerolog.Logger
	now        func() time.Time
}

// NewEvaluator wires an evaluator. All collaborators are injected; the
// evaluator owns only its decision cache.
func NewEvaluator(cfg Config, reg *registry.Registry, matrix *trust.Matrix, translator *trust.Translator, breakers *breaker.Registry, local *policy.LocalClient, remote *policy.RemoteClient, auditLog *audit.Logger, logger zerolog.Logger) *Evaluator {
	cfg = cfg.withDefaults()
	cache, err := otter.MustBuilder[uint64, Result](8192).
		WithTTL(cfg.CacheTTL).
		Build()
	if err != nil {
		panic("authz: failed to create decision cache: " + err.Error())
	}
	return &Evaluator{
		cfg:        cfg,
		registry:   reg,
		matrix:     matrix,
		translator: translator,
		breakers:   breakers,
		local:      local,
		remote:     remote,
		auditLog:   auditLog,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate answers an authorization request. Both allow and deny results are
// cached for the configured TTL. The returned result always carries an
// ordered audit trail of every step taken.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) Result {
	start := e.now()
	fp := e.fingerprint(req)

	if cached, ok := e.cache.Get(fp); ok {
		metrics.AuthzCacheHits.Inc()
		cached.Details.CacheHit = true
		cached.ExecutionTimeMs = e.now().Sub(start).Milliseconds()
		return cached
	}
	metrics.AuthzCacheMisses.Inc()

	result := e.evaluateUncached(ctx, req, start)
	result.ExecutionTimeMs = e.now().Sub(start).Milliseconds()
	e.cache.Set(fp, result)
	e.emit(req, result)
	return result
}

// EvaluateWithTrust performs the bilateral-trust check and classification
// ceiling enforcement before any policy evaluation, denying outright when
// the resource's classification exceeds the trust edge's ceiling.
func (e *Evaluator) EvaluateWithTrust(ctx context.Context, req Request) Result {
	if req.Resource.OwnerInstance == e.cfg.LocalInstance {
		return e.Evaluate(ctx, req)
	}
	start := e.now()

	edge, ok := e.matrix.VerifyTrust(e.cfg.LocalInstance, req.Resource.OwnerInstance)
	if !ok {
		result := e.structuredDeny(req, CodeNoBilateralTrust,
			fmt.Sprintf("%v: %s->%s", ErrNoBilateralTrust, e.cfg.LocalInstance, req.Resource.OwnerInstance),
			AuditStep{Step: "trust_check", Detail: "no effective bilateral trust edge", At: start})
		result.ExecutionTimeMs = e.now().Sub(start).Milliseconds()
		e.emit(req, result)
		return result
	}

	if trust.ExceedsCeiling(req.Resource.Classification, edge.MaxClassification) {
		result := e.structuredDeny(req, CodeClassificationExceedsTrust,
			fmt.Sprintf("%v: %s above %s", ErrClassificationExceedsTrust, req.Resource.Classification, edge.MaxClassification),
			AuditStep{Step: "classification_ceiling", Detail: fmt.Sprintf("resource %s, ceiling %s", req.Resource.Classification, edge.MaxClassification), At: e.now()})
		result.Details.BilateralTrust = &edge
		result.ExecutionTimeMs = e.now().Sub(start).Milliseconds()
		e.emit(req, result)
		return result
	}

	result := e.Evaluate(ctx, req)
	result.Details.BilateralTrust = &edge
	return result
}

func (e *Evaluator) evaluateUncached(ctx context.Context, req Request, start time.Time) Result {
	result := Result{
		DecisionID: ulid.Make().String(),
		AuditTrail: []AuditStep{{Step: "evaluation_started", Detail: "request " + req.RequestID, At: start}},
	}

	localDecision, err := e.local.Evaluate(ctx, e.policyInput(req, req.Subject.Clearance))
	if err != nil {
		e.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("local policy evaluation failed")
		result.Allow = false
		result.Code = CodeLocalUnavailable
		result.Reason = ErrLocalEvaluationUnavailable.Error()
		result.AuditTrail = append(result.AuditTrail, AuditStep{Step: "local_evaluation", Detail: "engine unavailable, fail closed", At: e.now()})
		return result
	}
	result.Details.LocalDecision = &localDecision
	result.AuditTrail = append(result.AuditTrail, AuditStep{
		Step:   "local_evaluation",
		Detail: fmt.Sprintf("allow=%t reason=%s", localDecision.Allow, localDecision.Reason),
		At:     e.now(),
	})

	// Local denial short-circuits; a remote allow can never override it.
	if !localDecision.Allow {
		result.Allow = false
		result.Code = CodeLocalDeny
		result.Reason = "local policy denied: " + localDecision.Reason
		return result
	}

	crossInstance := req.Resource.OwnerInstance != e.cfg.LocalInstance
	if !crossInstance {
		result.Allow = true
		result.Reason = localDecision.Reason
		result.Obligations = computeObligations(req, e.localCountry(), false, e.cfg.HighClassification)
		return result
	}

	owner, ok := e.registry.Resolve(req.Resource.OwnerInstance)
	if !ok {
		result.Allow = false
		result.Code = CodeRemoteUnavailable
		result.Reason = fmt.Sprintf("%v: unknown owning instance %s", ErrRemoteEvaluationUnavailable, req.Resource.OwnerInstance)
		result.AuditTrail = append(result.AuditTrail, AuditStep{Step: "remote_evaluation", Detail: "owning instance not resolvable", At: e.now()})
		return result
	}

	translated, mapped := e.translator.Translate(owner.Code, req.Subject.Clearance)
	result.Details.AttributeTranslation = &Translation{
		TargetInstance: owner.Code,
		From:           req.Subject.Clearance,
		To:             translated,
		Mapped:         mapped,
	}
	result.AuditTrail = append(result.AuditTrail, AuditStep{
		Step:   "attribute_translation",
		Detail: fmt.Sprintf("%s -> %s (mapped=%t)", req.Subject.Clearance, translated, mapped),
		At:     e.now(),
	})

	remoteDecision, step, ok := e.evaluateRemote(ctx, req, owner, translated)
	result.AuditTrail = append(result.AuditTrail, step)
	if !ok {
		result.Allow = false
		if step.Step == "circuit_check" {
			result.Code = CodeCircuitOpen
			result.Reason = fmt.Sprintf("%v: circuit open for %s", ErrRemoteEvaluationUnavailable, owner.Code)
		} else {
			result.Code = CodeRemoteUnavailable
			result.Reason = ErrRemoteEvaluationUnavailable.Error()
		}
		return result
	}
	result.Details.RemoteDecision = &remoteDecision

	if !remoteDecision.Allow {
		result.Allow = false
		result.Code = CodeRemoteDeny
		result.Reason = "remote policy denied: " + remoteDecision.Reason
		return result
	}

	// Both verdicts in hand: merged decision is their logical AND.
	result.Allow = true
	result.Reason = fmt.Sprintf("local allow (%s); remote allow (%s)", localDecision.Reason, remoteDecision.Reason)
	result.Obligations = computeObligations(req, owner.Country, true, e.cfg.HighClassification)

	e.breakers.For(owner.Code).MarkPolicyCached(e.now().Add(e.cfg.CacheTTL))
	return result
}

// evaluateRemote runs the breaker-gated remote evaluation, falling back to
// the local engine with translated attributes when the peer lacks the
// federation endpoint. ok=false means fail closed.
func (e *Evaluator) evaluateRemote(ctx context.Context, req Request, owner registry.Instance, translatedClearance string) (policy.Decision, AuditStep, bool) {
	ctrl := e.breakers.For(owner.Code)
	if !ctrl.Breaker().ShouldAllowRequest() {
		metrics.RemoteEvaluations.WithLabelValues(owner.Code, "circuit_open").Inc()
		e.logger.Warn().
			Str("peer", owner.Code).
			Str("mode", string(ctrl.Mode())).
			Msg("remote evaluation blocked by circuit breaker")
		// Distinguished from a genuine remote deny in the trail.
		return policy.Decision{}, AuditStep{Step: "circuit_check", Detail: "circuit not accepting calls to " + owner.Code, At: e.now()}, false
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RemoteTimeout)
	defer cancel()

	decision, err := e.remote.Evaluate(callCtx, owner.BaseURL, req.BearerToken, policy.FederationRequest{
		Subject:   e.subjectDocument(req.Subject, translatedClearance),
		Resource:  e.resourceDocument(req.Resource),
		Action:    req.Action,
		RequestID: req.RequestID,
	})
	switch {
	case err == nil:
		ctrl.Breaker().RecordSuccess()
		metrics.RemoteEvaluations.WithLabelValues(owner.Code, "ok").Inc()
		return decision, AuditStep{
			Step:   "remote_evaluation",
			Detail: fmt.Sprintf("peer=%s allow=%t reason=%s", owner.Code, decision.Allow, decision.Reason),
			At:     e.now(),
		}, true
	case isEndpointMissing(err):
		// The peer answered, just without the endpoint: not a failure for
		// breaker purposes. Evaluate its policy via the local engine with
		// the translated attributes instead.
		ctrl.Breaker().RecordSuccess()
		fallback, ferr := e.local.Evaluate(ctx, e.policyInput(req, translatedClearance))
		if ferr != nil {
			metrics.RemoteEvaluations.WithLabelValues(owner.Code, "fallback_error").Inc()
			return policy.Decision{}, AuditStep{Step: "remote_evaluation", Detail: "fallback evaluation failed: " + ferr.Error(), At: e.now()}, false
		}
		metrics.RemoteEvaluations.WithLabelValues(owner.Code, "fallback").Inc()
		return fallback, AuditStep{
			Step:   "remote_evaluation",
			Detail: fmt.Sprintf("peer=%s endpoint missing, local fallback allow=%t", owner.Code, fallback.Allow),
			At:     e.now(),
		}, true
	default:
		ctrl.Breaker().RecordFailure()
		metrics.RemoteEvaluations.WithLabelValues(owner.Code, "error").Inc()
		e.logger.Warn().Err(err).Str("peer", owner.Code).Msg("remote evaluation failed")
		return policy.Decision{}, AuditStep{Step: "remote_evaluation", Detail: "call failed: " + err.Error(), At: e.now()}, false
	}
}

func (e *Evaluator) structuredDeny(req Request, code, reason string, step AuditStep) Result {
	return Result{
		DecisionID: ulid.Make().String(),
		Allow:      false,
		Code:       code,
		Reason:     reason,
		AuditTrail: []AuditStep{step},
	}
}

func (e *Evaluator) policyInput(req Request, clearance string) policy.Input {
	return policy.Input{
		Subject:  e.subjectDocument(req.Subject, clearance),
		Action:   map[string]any{"id": req.Action},
		Resource: e.resourceDocument(req.Resource),
		Context: map[string]any{
			"requestId":     req.RequestID,
			"localInstance": e.cfg.LocalInstance,
		},
	}
}

func (e *Evaluator) subjectDocument(s Subject, clearance string) map[string]any {
	doc := map[string]any{
		"id":                   s.ID,
		"clearance":            clearance,
		"countryOfAffiliation": s.CountryOfAffiliation,
	}
	if s.UniqueID != "" {
		doc["uniqueID"] = s.UniqueID
	}
	if len(s.CommunityOfInterest) > 0 {
		doc["acpCOI"] = s.CommunityOfInterest
	}
	if s.OrganizationType != "" {
		doc["organizationType"] = s.OrganizationType
	}
	return doc
}

func (e *Evaluator) resourceDocument(r Resource) map[string]any {
	return map[string]any{
		"id":             r.ID,
		"ownerInstance":  r.OwnerInstance,
		"classification": r.Classification,
	}
}

func (e *Evaluator) localCountry() string {
	if inst, ok := e.registry.Resolve(e.cfg.LocalInstance); ok {
		return inst.Country
	}
	return ""
}

// fingerprint keys the decision cache on the attributes the decision depends
// on, not on the bearer token.
func (e *Evaluator) fingerprint(req Request) uint64 {
	h := xxh3.New()
	for _, part := range []string{
		req.Subject.ID,
		req.Subject.Clearance,
		req.Subject.CountryOfAffiliation,
		req.Resource.ID,
		req.Resource.OwnerInstance,
		req.Action,
	} {
		_, _ = h.WriteString(part)
		_, _ = h.WriteString("|")
	}
	return h.Sum64()
}

func (e *Evaluator) emit(req Request, result Result) {
	decision := "deny"
	if result.Allow {
		decision = "allow"
	}
	metrics.EvaluationDuration.WithLabelValues(decision).Observe(float64(result.ExecutionTimeMs) / 1000)

	if e.auditLog != nil {
		e.auditLog.LogDecision(audit.Decision{
			DecisionID:     result.DecisionID,
			RequestID:      req.RequestID,
			SubjectID:      req.Subject.ID,
			SubjectCountry: req.Subject.CountryOfAffiliation,
			ResourceID:     req.Resource.ID,
			OwnerInstance:  req.Resource.OwnerInstance,
			LocalInstance:  e.cfg.LocalInstance,
			Action:         req.Action,
			Allow:          result.Allow,
			Reason:         result.Reason,
			Code:           result.Code,
			Obligations:    result.Obligations,
			CacheHit:       result.Details.CacheHit,
		})
	}
}

func isEndpointMissing(err error) bool {
	return errors.Is(err, policy.ErrEndpointMissing)
}
