package api

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dive-coalition/federation/internal/audit"
	"github.com/dive-coalition/federation/internal/authz"
	"github.com/dive-coalition/federation/internal/breaker"
	"github.com/dive-coalition/federation/internal/config"
	"github.com/dive-coalition/federation/internal/policy"
	"github.com/dive-coalition/federation/internal/registry"
	"github.com/dive-coalition/federation/internal/token"
	"github.com/dive-coalition/federation/internal/trust"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	topo := &config.Topology{
		Instances: []config.TopologyInstance{
			{ID: "usa-1", Code: "USA", BaseURL: "https://idp.usa.example", TrustLevel: "high", Country: "USA", Enabled: true},
			{ID: "gbr-1", Code: "GBR", BaseURL: "https://idp.gbr.example", TrustLevel: "high", Country: "GBR", Enabled: true},
		},
		Trust: []config.TopologyTrust{
			{Source: "USA", Target: "GBR", TrustLevel: "high", MaxClassification: trust.ClassSecret, Enabled: true},
		},
	}
	reg := registry.New(topo)
	matrix := trust.NewMatrix(trust.NewStaticStore(topo), reg)
	breakers := breaker.NewRegistry(breaker.Config{})
	t.Cleanup(breakers.Stop)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	local := policy.NewLocalClient("http://localhost:0", "coalition/authz", time.Second)
	validator := token.NewValidator(token.ValidatorConfig{LocalInstance: "USA"},
		reg, matrix, breakers, nil, zerolog.Nop())
	exchanger := token.NewExchanger(token.ExchangerConfig{InstanceCode: "USA", KeyID: "k1"}, key, matrix)
	evaluator := authz.NewEvaluator(authz.Config{LocalInstance: "USA"},
		reg, matrix, trust.NewTranslator(nil), breakers, local,
		policy.NewRemoteClient(nil, time.Second), audit.NewLogger(zerolog.Nop()), zerolog.Nop())

	cfg := config.Config{
		Instance:    config.InstanceConfig{ID: "usa-1", Code: "USA", Country: "USA"},
		Policy:      config.PolicyConfig{EngineURL: "http://localhost:0"},
		Environment: "test",
	}

	return Deps{
		Config:      cfg,
		Logger:      zerolog.Nop(),
		Registry:    reg,
		Matrix:      matrix,
		Evaluator:   evaluator,
		Validator:   validator,
		Exchanger:   exchanger,
		Breakers:    breakers,
		LocalPolicy: local,
		VerifyKey:   &key.PublicKey,
		Version:     "test",
		GitCommit:   "none",
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	router, stop := NewRouter(testDeps(t))
	t.Cleanup(stop)
	return router
}

func TestRouterProbesAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "federation_")
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/federation/evaluate-policy", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
}

func TestRouterFederationRequiresPeerAuth(t *testing.T) {
	router := newTestRouter(t)

	// No X-Federated-From header.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/federation/evaluate-policy", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Asserted origin without a bearer token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/federation/evaluate-policy", strings.NewReader(`{}`))
	req.Header.Set("X-Federated-From", "GBR")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Origin with no bilateral trust fails closed with 403.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/federation/evaluate-policy", strings.NewReader(`{}`))
	req.Header.Set("X-Federated-From", "DEU")
	req.Header.Set("Authorization", "Bearer some-token")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "no-bilateral-trust")
}

func TestRouterAuthzValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/authz/evaluate", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
