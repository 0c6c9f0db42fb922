package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/dive-coalition/federation/internal/api/problem"
	"github.com/dive-coalition/federation/internal/breaker"
)

// BreakersHandler exposes circuit state for operators: read-only listing
// plus the maintenance override.
type BreakersHandler struct {
	Breakers *breaker.Registry
	Env      string
}

type breakerView struct {
	Peer  string                `json:"peer"`
	State breaker.FailoverState `json:"state"`
	Stats breaker.Stats         `json:"stats"`
}

// List handles GET /api/federation/breakers.
func (h *BreakersHandler) List(w http.ResponseWriter, r *http.Request) {
	var items []breakerView
	h.Breakers.Range(func(peer string, ctrl *breaker.Controller) bool {
		items = append(items, breakerView{
			Peer:  peer,
			State: ctrl.State(),
			Stats: ctrl.Breaker().Stats(),
		})
		return true
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Peer < items[j].Peer })
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Get handles GET /api/federation/breakers/{peer}.
func (h *BreakersHandler) Get(w http.ResponseWriter, r *http.Request) {
	peer := pathParam(r, "peer")
	ctrl := h.Breakers.For(peer)
	writeJSON(w, http.StatusOK, breakerView{
		Peer:  peer,
		State: ctrl.State(),
		Stats: ctrl.Breaker().Stats(),
	})
}

// Maintenance handles POST /api/federation/breakers/{peer}/maintenance.
// Maintenance is only ever entered and exited here, never automatically.
func (h *BreakersHandler) Maintenance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeInvalidRequest,
			"Body must be {\"enabled\": true|false}", err, h.Env)
		return
	}

	peer := pathParam(r, "peer")
	ctrl := h.Breakers.For(peer)
	ctrl.Breaker().SetMaintenance(*body.Enabled)

	writeJSON(w, http.StatusOK, breakerView{
		Peer:  peer,
		State: ctrl.State(),
		Stats: ctrl.Breaker().Stats(),
	})
}
