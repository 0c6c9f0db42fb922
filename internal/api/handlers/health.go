package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dive-coalition/federation/internal/breaker"
)

// HealthCheck is the aggregate health document served on /healthz.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Instance  string                 `json:"instance,omitempty"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult is the result of a single health check.
type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthChecker reports the health of this instance's dependencies: the
// policy engine and each peer's circuit.
type HealthChecker struct {
	client    *http.Client
	engineURL string
	breakers  *breaker.Registry
	instance  string
	version   string
	gitCommit string
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(client *http.Client, engineURL string, breakers *breaker.Registry, instance, version, gitCommit string) *HealthChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HealthChecker{
		client:    client,
		engineURL: engineURL,
		breakers:  breakers,
		instance:  instance,
		version:   version,
		gitCommit: gitCommit,
	}
}

// Health returns the comprehensive health handler. Open circuits degrade the
// status but never fail it: peers being down is an expected condition this
// service exists to survive.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"policy_engine": h.checkPolicyEngine(ctx),
			"peers":         h.checkPeers(),
		}

		overallStatus := "healthy"
		statusCode := http.StatusOK
		for _, check := range checks {
			if check.Status == "fail" {
				overallStatus = "unhealthy"
				statusCode = http.StatusServiceUnavailable
				break
			}
			if check.Status == "warn" && overallStatus == "healthy" {
				overallStatus = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(HealthCheck{
			Status:    overallStatus,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Instance:  h.instance,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *HealthChecker) checkPolicyEngine(ctx context.Context) CheckResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.engineURL+"/health", nil)
	if err != nil {
		return CheckResult{Status: "fail", Message: err.Error()}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return CheckResult{Status: "fail", Message: err.Error()}
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()
	if resp.StatusCode != http.StatusOK {
		return CheckResult{Status: "fail", Message: resp.Status, LatencyMs: latency}
	}
	return CheckResult{Status: "pass", LatencyMs: latency}
}

func (h *HealthChecker) checkPeers() CheckResult {
	details := make(map[string]any)
	status := "pass"
	h.breakers.Range(func(peer string, ctrl *breaker.Controller) bool {
		mode := ctrl.Mode()
		details[peer] = string(mode)
		if mode != breaker.ModeNormal {
			status = "warn"
		}
		return true
	})
	return CheckResult{Status: status, Details: details}
}

// Healthz is the trivial liveness probe.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Readyz reports readiness: the policy engine must be reachable before this
// instance can answer authorization requests.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if check := h.checkPolicyEngine(ctx); check.Status != "pass" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": check.Message,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
}
