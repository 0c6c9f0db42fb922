package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dive-coalition/federation/internal/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func breakersRequest(method, path string, body string, peer string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if peer != "" {
		req.SetPathValue("peer", peer)
	}
	return req
}

func TestBreakersList(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{})
	defer reg.Stop()
	reg.For("GBR")
	reg.For("FRA")

	h := &BreakersHandler{Breakers: reg, Env: "test"}
	rec := httptest.NewRecorder()
	h.List(rec, breakersRequest(http.MethodGet, "/api/federation/breakers", "", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []breakerView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "FRA", resp.Items[0].Peer)
	assert.Equal(t, breaker.ModeNormal, resp.Items[0].State.Mode)
}

func TestBreakersMaintenanceToggle(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{})
	defer reg.Stop()

	h := &BreakersHandler{Breakers: reg, Env: "test"}

	rec := httptest.NewRecorder()
	h.Maintenance(rec, breakersRequest(http.MethodPost, "/api/federation/breakers/GBR/maintenance", `{"enabled":true}`, "GBR"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, breaker.ModeMaintenance, reg.For("GBR").Mode())

	rec = httptest.NewRecorder()
	h.Maintenance(rec, breakersRequest(http.MethodPost, "/api/federation/breakers/GBR/maintenance", `{"enabled":false}`, "GBR"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, breaker.ModeNormal, reg.For("GBR").Mode())
}

func TestBreakersMaintenanceRequiresBody(t *testing.T) {
	reg := breaker.NewRegistry(breaker.Config{})
	defer reg.Stop()

	h := &BreakersHandler{Breakers: reg, Env: "test"}
	rec := httptest.NewRecorder()
	h.Maintenance(rec, breakersRequest(http.MethodPost, "/api/federation/breakers/GBR/maintenance", `{}`, "GBR"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
