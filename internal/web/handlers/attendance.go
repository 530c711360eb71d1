package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/attendance"
	"github.com/mkratky/rollcall/internal/session"
	"github.com/mkratky/rollcall/internal/store"
)

// AttendanceHandler handles attendance record endpoints.
type AttendanceHandler struct {
	controller *session.Controller
	ledger     *attendance.Ledger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(controller *session.Controller, ledger *attendance.Ledger) *AttendanceHandler {
	return &AttendanceHandler{controller: controller, ledger: ledger}
}

type markManualRequest struct {
	IdentityID uuid.UUID `json:"identity_id"`
	GroupID    uuid.UUID `json:"group_id"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
}

// MarkManual records or corrects attendance directly.
func (h *AttendanceHandler) MarkManual(w http.ResponseWriter, r *http.Request) {
	var req markManualRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	status, err := store.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	rec, err := h.controller.MarkManual(r.Context(), req.IdentityID, req.GroupID, date, status)
	switch {
	case errors.Is(err, session.ErrIdentityNotFound):
		respondError(w, http.StatusNotFound, "identity not found")
		return
	case errors.Is(err, session.ErrGroupNotFound):
		respondError(w, http.StatusNotFound, "group not found")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to record attendance")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Finalize ends the group's session for a date, marking everyone still
// unrecorded as absent.
func (h *AttendanceHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	marked, err := h.controller.EndSession(r.Context(), groupID, date)
	switch {
	case errors.Is(err, session.ErrGroupNotFound):
		respondError(w, http.StatusNotFound, "group not found")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to finalize session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"marked_absent": marked,
		"date":          date.Format("2006-01-02"),
	})
}

// Summary returns present/late/absent counts and records for a group and date.
func (h *AttendanceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	summary, records, err := h.ledger.Summarize(r.Context(), groupID, date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to summarize attendance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":    date.Format("2006-01-02"),
		"summary": summary,
		"records": records,
	})
}

// History returns an identity's attendance over the last N days
// (?days=, default 30).
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	identityID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	records, err := h.ledger.History(r.Context(), identityID, days, time.Now().UTC())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"records": records,
	})
}
