// Package server provides the HTTP server for the ReelForge API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// StartGenerationRequest is the HTTP request body for starting a generation.
type StartGenerationRequest struct {
	// ProjectID identifies the project holding the source image.
	ProjectID string `json:"project_id" validate:"required"`
	// Prompt is the text guiding the video synthesis.
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
}

// StartGenerationResponse is the HTTP response after starting a generation.
type StartGenerationResponse struct {
	// ID is the unique identifier for the created generation.
	ID string `json:"id"`
	// Status is the initial generation status.
	Status string `json:"status"`
}

// GenerationResponse is the HTTP response for generation status queries.
type GenerationResponse struct {
	// ID is the unique identifier for the generation.
	ID string `json:"id"`
	// Status is the current generation status.
	Status string `json:"status"`
	// VideoURL is the stored asset URL (set only when completed).
	VideoURL string `json:"video_url,omitempty"`
	// Error contains the failure message (set only when failed).
	Error string `json:"error,omitempty"`
	// Metadata carries timestamps, dimensions and provider diagnostics.
	Metadata map[string]string `json:"metadata,omitempty"`
	// CreatedAt is the RFC 3339 creation timestamp.
	CreatedAt string `json:"created_at"`
	// UpdatedAt is the RFC 3339 last-mutation timestamp.
	UpdatedAt string `json:"updated_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
