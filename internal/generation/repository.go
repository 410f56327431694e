package generation

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a generation cannot be found by ID.
var ErrNotFound = errors.New("generation not found")

// Update describes a partial mutation of a generation record.
// Nil fields are left untouched; Metadata entries are merged into the
// existing bag. Repository writes are point writes: no transactions are
// assumed, conditional logic lives in the orchestrator's updateStatus gate.
type Update struct {
	Status        *Status
	ProviderJobID *string
	VideoURL      *string
	ErrorMessage  *string
	Metadata      map[string]string
}

// Repository defines the persistence port for generations.
type Repository interface {
	// Create persists a new generation record.
	Create(ctx context.Context, gen *Generation) error

	// Get retrieves a generation by ID.
	// Returns ErrNotFound if the generation does not exist.
	Get(ctx context.Context, id string) (*Generation, error)

	// Update applies a partial mutation and returns the updated record.
	// Returns ErrNotFound if the generation does not exist.
	Update(ctx context.Context, id string, upd Update) (*Generation, error)

	// List returns all generations.
	List(ctx context.Context) ([]*Generation, error)
}
