// Package generation provides the Generation aggregate and the lifecycle
// orchestrator for image-to-video generation jobs. It includes the status
// state machine, repository and event ports, and the per-generation polling
// loop that reconciles remote provider state with local state.
package generation

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a Generation.
type Status string

const (
	// StatusQueued indicates the generation record exists but no background
	// work has started yet.
	StatusQueued Status = "QUEUED"
	// StatusPreparing indicates the provider submission is in flight.
	StatusPreparing Status = "PREPARING"
	// StatusGenerating indicates the provider accepted the job and is rendering.
	StatusGenerating Status = "GENERATING"
	// StatusProcessing indicates the provider finished and the output is being
	// downloaded, validated and persisted locally.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted indicates the final asset is durably stored.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the generation failed at some stage.
	StatusFailed Status = "FAILED"
)

// IsTerminal returns true if the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// validTransitions defines which status transitions are allowed.
// The graph is directed, acyclic, with two sinks.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusPreparing, StatusFailed},
	StatusPreparing:  {StatusGenerating, StatusFailed},
	StatusGenerating: {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether a transition from one status to another is valid.
func CanTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Generation represents one image+prompt to video lifecycle.
// The entity is passive: all mutation flows through the orchestrator's
// updateStatus gate, and the repository hands out clones.
type Generation struct {
	// ID is the unique identifier, assigned at creation, immutable.
	ID string
	// UserID is the owning user, immutable.
	UserID string
	// ProjectID scopes the generation to a project, immutable.
	ProjectID string
	// Prompt is the user-supplied text, immutable after creation.
	Prompt string
	// Status is the current lifecycle state.
	Status Status
	// ProviderJobID is set once the provider accepts the job.
	ProviderJobID string
	// VideoURL is set only on transition into COMPLETED.
	VideoURL string
	// ErrorMessage is set only on transition into FAILED.
	ErrorMessage string
	// Metadata is an open key/value bag (source image URL, dimensions,
	// codec, provider diagnostics).
	Metadata map[string]string
	// CreatedAt is when the generation was created.
	CreatedAt time.Time
	// UpdatedAt is when the generation was last mutated.
	UpdatedAt time.Time
}

// New creates a new Generation in QUEUED status with a generated ID.
func New(userID, projectID, prompt string) *Generation {
	now := time.Now()
	return &Generation{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		Prompt:    prompt,
		Status:    StatusQueued,
		Metadata:  make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal returns true if the generation is in a terminal state.
func (g *Generation) IsTerminal() bool {
	return g.Status.IsTerminal()
}

// Clone creates a deep copy of the generation for safe reads.
func (g *Generation) Clone() *Generation {
	meta := make(map[string]string, len(g.Metadata))
	for k, v := range g.Metadata {
		meta[k] = v
	}

	clone := *g
	clone.Metadata = meta
	return &clone
}
