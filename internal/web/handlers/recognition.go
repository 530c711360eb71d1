package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mkratky/rollcall/internal/detector"
	"github.com/mkratky/rollcall/internal/session"
	"github.com/mkratky/rollcall/internal/store"
	"github.com/mkratky/rollcall/internal/templates"
)

// RecognitionHandler handles recognition and template endpoints.
type RecognitionHandler struct {
	controller *session.Controller
	log        *slog.Logger
}

// NewRecognitionHandler creates a new recognition handler.
func NewRecognitionHandler(controller *session.Controller, log *slog.Logger) *RecognitionHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RecognitionHandler{controller: controller, log: log}
}

// readImageUpload extracts the "image" part of a multipart request and
// downscales oversized frames before detection. On failure it writes the
// error response and returns nil.
func readImageUpload(w http.ResponseWriter, r *http.Request) []byte {
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return nil
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return nil
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageUpload))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return nil
	}

	prepared, err := detector.PrepareImage(data, detector.MaxUploadDimension)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported image format")
		return nil
	}
	return prepared
}

// Recognize processes one frame for a group and returns the outcome.
func (h *RecognitionHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	groupID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	image := readImageUpload(w, r)
	if image == nil {
		return
	}

	result := h.controller.AttemptRecognition(r.Context(), image, groupID)
	status := http.StatusOK
	if result.Kind == session.ResultFailure {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, result)
}

// Identify matches the uploaded frame against the full enrolled
// population without recording attendance.
func (h *RecognitionHandler) Identify(w http.ResponseWriter, r *http.Request) {
	image := readImageUpload(w, r)
	if image == nil {
		return
	}

	result := h.controller.Identify(r.Context(), image)
	status := http.StatusOK
	if result.Kind == session.ResultFailure {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, result)
}

// Enroll extracts a face template from the uploaded image and stores it
// for the identity.
func (h *RecognitionHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	identityID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	image := readImageUpload(w, r)
	if image == nil {
		return
	}

	outcome, err := h.controller.Enroll(r.Context(), image, identityID)
	switch {
	case errors.Is(err, session.ErrIdentityNotFound):
		respondError(w, http.StatusNotFound, "identity not found")
		return
	case errors.Is(err, templates.ErrNoFaceDetected):
		respondError(w, http.StatusUnprocessableEntity, "no face detected in image")
		return
	case err != nil:
		h.log.Error("enrollment failed", slog.String("error", err.Error()))
		respondError(w, http.StatusBadGateway, "enrollment failed")
		return
	}
	respondJSON(w, http.StatusCreated, outcome)
}

// Revoke removes the identity's stored template.
func (h *RecognitionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	identityID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.controller.Revoke(r.Context(), identityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no template for identity")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to revoke template")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
