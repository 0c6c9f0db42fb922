package handlers

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dive-coalition/federation/internal/api/middleware"
	"github.com/dive-coalition/federation/internal/api/problem"
	"github.com/dive-coalition/federation/internal/metrics"
	"github.com/dive-coalition/federation/internal/policy"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/dive-coalition/federation/internal/token"
	"github.com/dive-coalition/federation/internal/trust"
)

// grantTypeTokenExchange is the RFC 8693 token exchange grant type.
const grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

// FederationHandler serves the peer-facing federation endpoints. Every route
// behind it runs after PeerAuth, so the origin instance on the context is
// already authenticated.
type FederationHandler struct {
	Local         *policy.LocalClient
	Exchanger     *token.Exchanger
	Validator     *token.Validator
	Matrix        *trust.Matrix
	Registry      *registry.Registry
	VerifyKey     *rsa.PublicKey
	LocalInstance string
	Env           string
}

// EvaluatePolicy handles POST /api/federation/evaluate-policy. A peer asks
// this instance to evaluate its own policy for a subject the peer has
// already translated into our vocabulary.
func (h *FederationHandler) EvaluatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policy.FederationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest, "Invalid request body", err, h.Env)
		return
	}
	if req.Action == "" || req.Subject == nil || req.Resource == nil {
		problem.WriteProblem(w, problem.ProblemDetails{
			Type:     problem.TypeInvalidRequest,
			Title:    "Validation Failed",
			Status:   http.StatusUnprocessableEntity,
			Instance: r.URL.Path,
			Errors:   missingFields(req),
		})
		return
	}

	decision, err := h.Local.Evaluate(r.Context(), policy.Input{
		Subject:  req.Subject,
		Action:   map[string]any{"id": req.Action},
		Resource: req.Resource,
		Context: map[string]any{
			"requestId":      req.RequestID,
			"originInstance": middleware.OriginInstance(r.Context()),
			"localInstance":  h.LocalInstance,
		},
	})
	if err != nil {
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeInternal, "Policy engine unavailable", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// TokenExchange handles POST /api/federation/token-exchange. The
// authenticated peer presents a subject token from its own instance and
// receives a short-lived exchange token targeted at the requested audience.
func (h *FederationHandler) TokenExchange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest, "Invalid form body", err, h.Env)
		return
	}

	if grantType := r.PostFormValue("grant_type"); grantType != grantTypeTokenExchange {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest,
			"Unsupported grant_type", nil, h.Env,
			problem.WithDetail("grant_type must be "+grantTypeTokenExchange))
		return
	}

	subjectToken := r.PostFormValue("subject_token")
	audience := strings.ToUpper(strings.TrimSpace(r.PostFormValue("audience")))
	if subjectToken == "" || audience == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest,
			"subject_token and audience are required", nil, h.Env)
		return
	}

	var scopes []string
	if scope := r.PostFormValue("scope"); scope != "" {
		scopes = strings.Fields(scope)
	}

	origin := middleware.OriginInstance(r.Context())
	subject := h.Validator.Validate(r.Context(), token.ValidateRequest{
		Token:           subjectToken,
		OriginInstance:  origin,
		RequestedScopes: scopes,
	})

	resp, err := h.Exchanger.Exchange(token.ExchangeRequest{
		Subject:         subject,
		OriginInstance:  origin,
		TargetInstance:  audience,
		RequestedScopes: scopes,
	})
	if err != nil {
		if errors.Is(err, token.ErrInvalidGrant) {
			metrics.TokenExchanges.WithLabelValues("invalid_grant").Inc()
			problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidGrant, "Invalid grant", err, h.Env)
			return
		}
		metrics.TokenExchanges.WithLabelValues("error").Inc()
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal, "Token exchange failed", err, h.Env)
		return
	}

	metrics.TokenExchanges.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, resp)
}

// introspection is the wire response for POST /api/federation/introspect.
// Inactive answers carry nothing beyond active=false.
type introspection struct {
	Active               bool              `json:"active"`
	Sub                  string            `json:"sub,omitempty"`
	Iss                  string            `json:"iss,omitempty"`
	Aud                  []string          `json:"aud,omitempty"`
	Exp                  int64             `json:"exp,omitempty"`
	Iat                  int64             `json:"iat,omitempty"`
	JTI                  string            `json:"jti,omitempty"`
	UniqueID             string            `json:"uniqueID,omitempty"`
	Clearance            string            `json:"clearance,omitempty"`
	CountryOfAffiliation string            `json:"countryOfAffiliation,omitempty"`
	ACPCOI               []string          `json:"acpCOI,omitempty"`
	OrganizationType     string            `json:"organizationType,omitempty"`
	InstanceCode         string            `json:"instanceCode,omitempty"`
	TokenExchange        *token.Provenance `json:"token_exchange,omitempty"`
}

// Introspect handles POST /api/federation/introspect. Peers use it to check
// exchange tokens minted by this instance; verification is purely local
// against our own signing key.
func (h *FederationHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest, "Invalid form body", err, h.Env)
		return
	}

	raw := r.PostFormValue("token")
	if raw == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest, "token is required", nil, h.Env)
		return
	}

	claims, provenance, err := token.VerifyExchangeToken(raw, h.VerifyKey)
	if err != nil {
		writeJSON(w, http.StatusOK, introspection{Active: false})
		return
	}

	writeJSON(w, http.StatusOK, introspection{
		Active:               true,
		Sub:                  claims.Subject,
		Iss:                  claims.Issuer,
		Aud:                  claims.Audience,
		Exp:                  claims.ExpiresAt.Unix(),
		Iat:                  claims.IssuedAt.Unix(),
		JTI:                  claims.JTI,
		UniqueID:             claims.UniqueID,
		Clearance:            claims.Clearance,
		CountryOfAffiliation: claims.CountryOfAffiliation,
		ACPCOI:               claims.CommunityOfInterest,
		OrganizationType:     claims.OrganizationType,
		InstanceCode:         claims.InstanceCode,
		TokenExchange:        provenance,
	})
}

// instanceView is the public shape of a registry entry; introspection and
// signing-key URLs stay internal.
type instanceView struct {
	Code       string `json:"code"`
	Country    string `json:"country"`
	TrustLevel string `json:"trust_level"`
	Enabled    bool   `json:"enabled"`
}

// Instances handles GET /api/federation/instances.
func (h *FederationHandler) Instances(w http.ResponseWriter, r *http.Request) {
	instances := h.Registry.List()
	items := make([]instanceView, 0, len(instances))
	for _, inst := range instances {
		items = append(items, instanceView{
			Code:       inst.Code,
			Country:    inst.Country,
			TrustLevel: string(inst.TrustLevel),
			Enabled:    inst.Enabled,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Trusts handles GET /api/federation/trusts, listing the effective trust
// edges this instance can act on.
func (h *FederationHandler) Trusts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": h.Matrix.ListTrustsFor(h.LocalInstance),
	})
}

// TrustEdge handles GET /api/federation/trusts/{source}/{target}, answering
// whether a directional trust edge is currently effective. Disabled and
// expired edges answer 404 the same as absent ones.
func (h *FederationHandler) TrustEdge(w http.ResponseWriter, r *http.Request) {
	source := strings.ToUpper(pathParam(r, "source"))
	target := strings.ToUpper(pathParam(r, "target"))

	edge, ok := h.Matrix.VerifyTrust(source, target)
	if !ok {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNoTrust,
			"No Bilateral Trust", nil, h.Env,
			problem.WithDetail("no effective trust from "+source+" to "+target))
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func missingFields(req policy.FederationRequest) map[string]any {
	errs := make(map[string]any)
	if req.Action == "" {
		errs["action"] = "required"
	}
	if req.Subject == nil {
		errs["subject"] = "required"
	}
	if req.Resource == nil {
		errs["resource"] = "required"
	}
	return errs
}
