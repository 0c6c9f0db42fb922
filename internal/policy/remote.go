package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEndpointMissing marks a peer that does not expose the federation
// evaluation endpoint (404). Callers fall back to evaluating the peer's
// policy locally instead of treating this as a denial.
var ErrEndpointMissing = errors.New("federation evaluation endpoint missing")

// FederationRequest is the body of a cross-instance evaluation call.
type FederationRequest struct {
	Subject   map[string]any `json:"subject"`
	Resource  map[string]any `json:"resource"`
	Action    string         `json:"action"`
	RequestID string         `json:"requestId"`
}

// RemoteClient calls a peer instance's federation evaluation endpoint.
type RemoteClient struct {
	client *http.Client
}

// NewRemoteClient creates a remote evaluation client. A nil http client gets
// a default with the given timeout.
func NewRemoteClient(client *http.Client, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteClient{client: client}
}

// Evaluate posts the request to the peer's federation endpoint. The bearer
// token authenticates this instance to the peer.
func (c *RemoteClient) Evaluate(ctx context.Context, peerBaseURL, bearerToken string, req FederationRequest) (Decision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, fmt.Errorf("encode federation request: %w", err)
	}

	url := peerBaseURL + "/api/federation/evaluate-policy"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Decision{}, fmt.Errorf("federation evaluation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Decision{}, ErrEndpointMissing
	}
	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("federation evaluation request: unexpected status %d", resp.StatusCode)
	}

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{}, fmt.Errorf("decode federation response: %w", err)
	}
	return decision, nil
}
