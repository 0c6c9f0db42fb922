package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalClientEvaluate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/data/coalition/authz", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		input, ok := body["input"].(map[string]any)
		require.True(t, ok, "request must wrap the input document")
		assert.Contains(t, input, "subject")

		w.Write([]byte(`{"result": {"allow": true, "reason": "clearance sufficient"}}`))
	}))
	defer srv.Close()

	client := NewLocalClient(srv.URL, "coalition/authz", time.Second)
	decision, err := client.Evaluate(context.Background(), Input{
		Subject:  map[string]any{"clearance": "SECRET"},
		Action:   map[string]any{"id": "read"},
		Resource: map[string]any{"id": "doc-1"},
	})
	require.NoError(t, err)
	assert.True(t, decision.Allow)
	assert.Equal(t, "clearance sufficient", decision.Reason)
}

func TestLocalClientNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewLocalClient(srv.URL, "coalition/authz", time.Second)
	_, err := client.Evaluate(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrNoDecision)
}

func TestLocalClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewLocalClient(srv.URL, "coalition/authz", time.Second)
	_, err := client.Evaluate(context.Background(), Input{})
	assert.Error(t, err)
}

func TestRemoteClientEvaluate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/federation/evaluate-policy", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		var req FederationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "read", req.Action)
		assert.Equal(t, "req-1", req.RequestID)

		w.Write([]byte(`{"allow": false, "reason": "caveat not met"}`))
	}))
	defer srv.Close()

	client := NewRemoteClient(nil, time.Second)
	decision, err := client.Evaluate(context.Background(), srv.URL, "tok-123", FederationRequest{
		Action:    "read",
		RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allow)
	assert.Equal(t, "caveat not met", decision.Reason)
}

func TestRemoteClientEndpointMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewRemoteClient(nil, time.Second)
	_, err := client.Evaluate(context.Background(), srv.URL, "", FederationRequest{})
	assert.ErrorIs(t, err, ErrEndpointMissing)
}
