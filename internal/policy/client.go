// Package policy holds the HTTP clients for the external policy engine and
// for peer federation-evaluation endpoints. Both are collaborators owned
// elsewhere; this package only speaks their wire contracts.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Input is the structured input sent to the policy engine.
type Input struct {
	Subject  map[string]any `json:"subject"`
	Action   map[string]any `json:"action"`
	Resource map[string]any `json:"resource"`
	Context  map[string]any `json:"context,omitempty"`
}

// Decision is a policy verdict with a human-readable reason.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// engineResponse is the OPA data-API response envelope.
type engineResponse struct {
	Result *Decision `json:"result"`
}

// ErrNoDecision is returned when the engine answers without a result
// document, which means the policy path is wrong or the bundle is missing.
var ErrNoDecision = errors.New("policy engine returned no decision")

// LocalClient evaluates policy against the local policy engine's data API.
type LocalClient struct {
	engineURL  string
	policyPath string
	client     *http.Client
}

// NewLocalClient creates a client for the engine at engineURL evaluating the
// document at policyPath (slash-separated, e.g. "coalition/authz").
func NewLocalClient(engineURL, policyPath string, timeout time.Duration) *LocalClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LocalClient{
		engineURL:  strings.TrimRight(engineURL, "/"),
		policyPath: strings.Trim(policyPath, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

// Evaluate posts the input and returns the engine's decision. Transport and
// protocol failures return an error; callers treat any error as deny.
func (c *LocalClient) Evaluate(ctx context.Context, input Input) (Decision, error) {
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return Decision{}, fmt.Errorf("encode policy input: %w", err)
	}

	url := c.engineURL + "/v1/data/" + c.policyPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("policy engine request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("policy engine request: unexpected status %d", resp.StatusCode)
	}

	var parsed engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Decision{}, fmt.Errorf("decode policy response: %w", err)
	}
	if parsed.Result == nil {
		return Decision{}, ErrNoDecision
	}
	return *parsed.Result, nil
}
