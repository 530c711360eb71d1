package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mkratky/rollcall/internal/store"
)

// GroupsHandler handles group management endpoints.
type GroupsHandler struct {
	groups store.GroupRepository
}

// NewGroupsHandler creates a new groups handler.
func NewGroupsHandler(groups store.GroupRepository) *GroupsHandler {
	return &GroupsHandler{groups: groups}
}

type createGroupRequest struct {
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	Department string `json:"department"`
	Schedule   string `json:"schedule"`
}

// List returns all groups.
func (h *GroupsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.groups.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"groups": all})
}

// Create registers a new group.
func (h *GroupsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	group := &store.Group{
		ID:         uuid.New(),
		Name:       req.Name,
		Owner:      strings.TrimSpace(req.Owner),
		Department: strings.TrimSpace(req.Department),
		Schedule:   strings.TrimSpace(req.Schedule),
	}
	if err := h.groups.Create(r.Context(), group); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	respondJSON(w, http.StatusCreated, group)
}

// Get returns a single group.
func (h *GroupsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	group, err := h.groups.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}
	respondJSON(w, http.StatusOK, group)
}
