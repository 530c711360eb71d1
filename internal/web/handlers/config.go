package handlers

import (
	"net/http"

	"github.com/mkratky/rollcall/internal/matching"
)

// ConfigHandler exposes runtime-tunable matching configuration.
type ConfigHandler struct {
	matcher *matching.Engine
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(matcher *matching.Engine) *ConfigHandler {
	return &ConfigHandler{matcher: matcher}
}

// Get returns the current matching configuration.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"tolerance": h.matcher.Tolerance(),
	})
}

type setToleranceRequest struct {
	Tolerance float64 `json:"tolerance"`
}

// SetTolerance adjusts the match distance threshold at runtime. The new
// value applies to subsequent recognition attempts only.
func (h *ConfigHandler) SetTolerance(w http.ResponseWriter, r *http.Request) {
	var req setToleranceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := h.matcher.SetTolerance(req.Tolerance); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tolerance": h.matcher.Tolerance(),
	})
}
