package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/store"
)

// IdentitiesHandler handles identity management endpoints.
type IdentitiesHandler struct {
	identities store.IdentityRepository
	groups     store.GroupRepository
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(identities store.IdentityRepository, groups store.GroupRepository) *IdentitiesHandler {
	return &IdentitiesHandler{identities: identities, groups: groups}
}

type createIdentityRequest struct {
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Department string     `json:"department"`
	GroupID    *uuid.UUID `json:"group_id"`
}

// List returns all identities, optionally filtered by ?name=.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		found, err := h.identities.FindByName(r.Context(), name)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to search identities")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"identities": found})
		return
	}

	all, err := h.identities.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list identities")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"identities": all})
}

// Create registers a new identity.
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "code and name are required")
		return
	}

	if existing, err := h.identities.GetByCode(r.Context(), req.Code); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to check identity code")
		return
	} else if existing != nil {
		respondError(w, http.StatusConflict, "identity code already exists")
		return
	}

	if req.GroupID != nil {
		group, err := h.groups.Get(r.Context(), *req.GroupID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to check group")
			return
		}
		if group == nil {
			respondError(w, http.StatusBadRequest, "group does not exist")
			return
		}
	}

	identity := &store.Identity{
		ID:         uuid.New(),
		Code:       req.Code,
		Name:       req.Name,
		Email:      strings.TrimSpace(req.Email),
		Department: strings.TrimSpace(req.Department),
		GroupID:    req.GroupID,
	}
	if err := h.identities.Create(r.Context(), identity); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create identity")
		return
	}
	respondJSON(w, http.StatusCreated, identity)
}

// Get returns a single identity.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	identity, err := h.identities.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load identity")
		return
	}
	if identity == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, identity)
}

// Delete removes an identity; its template and attendance cascade.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.identities.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "identity not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete identity")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type assignGroupRequest struct {
	GroupID *uuid.UUID `json:"group_id"`
}

// AssignGroup sets or clears the identity's group membership.
func (h *IdentitiesHandler) AssignGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	var req assignGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.GroupID != nil {
		group, err := h.groups.Get(r.Context(), *req.GroupID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to check group")
			return
		}
		if group == nil {
			respondError(w, http.StatusBadRequest, "group does not exist")
			return
		}
	}
	if err := h.identities.AssignGroup(r.Context(), id, req.GroupID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to assign group")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// ListByGroup returns all members of a group.
func (h *IdentitiesHandler) ListByGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	members, err := h.identities.ListByGroup(r.Context(), groupID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list group members")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}
