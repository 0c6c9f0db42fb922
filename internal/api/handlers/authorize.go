package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dive-coalition/federation/internal/api/middleware"
	"github.com/dive-coalition/federation/internal/api/problem"
	"github.com/dive-coalition/federation/internal/authz"
)

// AuthzHandler serves the client-facing authorization endpoint.
type AuthzHandler struct {
	Evaluator *authz.Evaluator
	Env       string
}

type authorizeRequest struct {
	Subject  authz.Subject  `json:"subject"`
	Resource authz.Resource `json:"resource"`
	Action   string         `json:"action"`
}

func (req authorizeRequest) fieldErrors() map[string]any {
	errs := make(map[string]any)
	if req.Subject.ID == "" {
		errs["subject.id"] = "required"
	}
	if req.Subject.Clearance == "" {
		errs["subject.clearance"] = "required"
	}
	if req.Resource.ID == "" {
		errs["resource.id"] = "required"
	}
	if req.Resource.OwnerInstance == "" {
		errs["resource.ownerInstance"] = "required"
	}
	if req.Resource.Classification == "" {
		errs["resource.classification"] = "required"
	}
	if req.Action == "" {
		errs["action"] = "required"
	}
	return errs
}

// Evaluate handles POST /api/authz/evaluate. The answer is always 200 with
// an allow or deny decision; problem responses are reserved for malformed
// requests.
func (h *AuthzHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest, "Invalid request body", err, h.Env)
		return
	}
	if errs := req.fieldErrors(); len(errs) > 0 {
		problem.WriteProblem(w, problem.ProblemDetails{
			Type:     problem.TypeInvalidRequest,
			Title:    "Validation Failed",
			Status:   http.StatusUnprocessableEntity,
			Instance: r.URL.Path,
			Errors:   errs,
		})
		return
	}

	result := h.Evaluator.EvaluateWithTrust(r.Context(), authz.Request{
		Subject:     req.Subject,
		Resource:    req.Resource,
		Action:      req.Action,
		RequestID:   middleware.GetRequestID(r.Context()),
		BearerToken: bearerToken(r),
	})

	writeJSON(w, http.StatusOK, result)
}
