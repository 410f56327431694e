package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/reelforge/reelforge-api/internal/generation"
)

// userIDHeader carries the authenticated caller's identity. Authentication
// itself happens upstream of this service.
const userIDHeader = "X-User-ID"

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	orchestrator *generation.Orchestrator
	validator    *validator.Validate
	logger       *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(orchestrator *generation.Orchestrator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		orchestrator: orchestrator,
		validator:    validator.New(),
		logger:       logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// StartGeneration handles POST /generations requests.
// It returns 202 with the generation ID; the lifecycle runs in the
// background and is observable via GET /generations/{id}.
func (h *Handlers) StartGeneration(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user identity is required", "MISSING_USER")
		return
	}

	var req StartGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	id, err := h.orchestrator.Start(r.Context(), userID, req.Prompt, req.ProjectID)
	if err != nil {
		h.writeDomainError(w, err, "failed to start generation")
		return
	}

	h.logger.Info("generation started",
		slog.String("generation_id", id),
		slog.String("user_id", userID),
		slog.String("project_id", req.ProjectID),
	)

	writeJSON(w, http.StatusAccepted, StartGenerationResponse{
		ID:     id,
		Status: string(generation.StatusQueued),
	})
}

// GetGeneration handles GET /generations/{id} requests.
func (h *Handlers) GetGeneration(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user identity is required", "MISSING_USER")
		return
	}

	generationID := r.PathValue("id")
	if generationID == "" {
		writeError(w, http.StatusBadRequest, "generation ID is required", "MISSING_GENERATION_ID")
		return
	}

	gen, err := h.orchestrator.GetStatus(r.Context(), generationID, userID)
	if err != nil {
		h.writeDomainError(w, err, "failed to get generation")
		return
	}

	writeJSON(w, http.StatusOK, GenerationResponse{
		ID:        gen.ID,
		Status:    string(gen.Status),
		VideoURL:  gen.VideoURL,
		Error:     gen.ErrorMessage,
		Metadata:  gen.Metadata,
		CreatedAt: gen.CreatedAt.Format(time.RFC3339),
		UpdatedAt: gen.UpdatedAt.Format(time.RFC3339),
	})
}

// writeDomainError maps generation error kinds to HTTP responses.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	kind, ok := generation.KindOf(err)
	if !ok {
		h.logger.Error(fallback,
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, fallback, "INTERNAL_ERROR")
		return
	}

	switch kind {
	case generation.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error(), string(kind))
	case generation.KindInsufficientTokens:
		writeError(w, http.StatusPaymentRequired, err.Error(), string(kind))
	case generation.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error(), string(kind))
	case generation.KindForbidden:
		writeError(w, http.StatusForbidden, err.Error(), string(kind))
	default:
		h.logger.Error(fallback,
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error(), string(kind))
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
