package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dive-coalition/federation/internal/audit"
	"github.com/dive-coalition/federation/internal/authz"
	"github.com/dive-coalition/federation/internal/breaker"
	"github.com/dive-coalition/federation/internal/policy"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/dive-coalition/federation/internal/trust"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthzHandler(t *testing.T) *AuthzHandler {
	t.Helper()
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"allow": true, "reason": "clearance sufficient"},
		})
	}))
	t.Cleanup(engine.Close)

	topo := federationTopology(t)
	reg := registry.New(topo)
	matrix := trust.NewMatrix(trust.NewStaticStore(topo), reg)
	breakers := breaker.NewRegistry(breaker.Config{})
	t.Cleanup(breakers.Stop)

	evaluator := authz.NewEvaluator(
		authz.Config{LocalInstance: "USA"},
		reg, matrix, trust.NewTranslator(nil), breakers,
		policy.NewLocalClient(engine.URL, "coalition/authz", time.Second),
		policy.NewRemoteClient(nil, time.Second),
		audit.NewLogger(zerolog.Nop()),
		zerolog.Nop(),
	)
	return &AuthzHandler{Evaluator: evaluator, Env: "test"}
}

func TestAuthorizeEvaluateAllow(t *testing.T) {
	h := newAuthzHandler(t)

	body := `{"subject":{"id":"jane","clearance":"SECRET","countryOfAffiliation":"USA"},"resource":{"id":"doc-1","ownerInstance":"USA","classification":"CONFIDENTIAL"},"action":"read"}`
	rec := httptest.NewRecorder()
	h.Evaluate(rec, httptest.NewRequest(http.MethodPost, "/api/authz/evaluate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var result authz.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Allow)
	assert.NotEmpty(t, result.DecisionID)
}

func TestAuthorizeEvaluateValidation(t *testing.T) {
	h := newAuthzHandler(t)

	rec := httptest.NewRecorder()
	h.Evaluate(rec, httptest.NewRequest(http.MethodPost, "/api/authz/evaluate", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "subject.id")
	assert.Contains(t, rec.Body.String(), "resource.ownerInstance")
}

func TestAuthorizeEvaluateNoTrustDeny(t *testing.T) {
	h := newAuthzHandler(t)

	body := `{"subject":{"id":"jane","clearance":"SECRET","countryOfAffiliation":"USA"},"resource":{"id":"doc-2","ownerInstance":"FRA","classification":"CONFIDENTIAL"},"action":"read"}`
	rec := httptest.NewRecorder()
	h.Evaluate(rec, httptest.NewRequest(http.MethodPost, "/api/authz/evaluate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var result authz.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Allow)
	assert.Equal(t, authz.CodeNoBilateralTrust, result.Code)
}

func TestAuthorizeEvaluateBadJSON(t *testing.T) {
	h := newAuthzHandler(t)

	rec := httptest.NewRecorder()
	h.Evaluate(rec, httptest.NewRequest(http.MethodPost, "/api/authz/evaluate", strings.NewReader(`{`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
