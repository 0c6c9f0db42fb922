package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dive-coalition/federation/internal/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthzAlwaysOK(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthDegradedWhenPeerOffline(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer engine.Close()

	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 1})
	defer breakers.Stop()
	breakers.For("GBR").Breaker().RecordFailure()

	h := NewHealthChecker(nil, engine.URL, breakers, "USA", "1.0.0", "abc123")
	rec := httptest.NewRecorder()
	h.Health().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/federation/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var check HealthCheck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.Equal(t, "degraded", check.Status)
	assert.Equal(t, "warn", check.Checks["peers"].Status)
	assert.Equal(t, "offline", check.Checks["peers"].Details["GBR"])
}

func TestReadyzFailsWithoutPolicyEngine(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	engine.Close()

	breakers := breaker.NewRegistry(breaker.Config{})
	defer breakers.Stop()

	h := NewHealthChecker(nil, engine.URL, breakers, "USA", "1.0.0", "abc123")
	rec := httptest.NewRecorder()
	h.Readyz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyzPassesWithPolicyEngine(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer engine.Close()

	breakers := breaker.NewRegistry(breaker.Config{})
	defer breakers.Stop()

	h := NewHealthChecker(nil, engine.URL, breakers, "USA", "1.0.0", "abc123")
	rec := httptest.NewRecorder()
	h.Readyz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
