package generation

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access.
// Suitable for development and testing; swap for persistent storage in production.
type MemoryRepository struct {
	mu          sync.RWMutex
	generations map[string]*Generation
}

// NewMemoryRepository creates a new in-memory generation repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		generations: make(map[string]*Generation),
	}
}

// Create persists a new generation.
// Stores a clone to avoid external mutations.
func (r *MemoryRepository) Create(_ context.Context, gen *Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[gen.ID] = gen.Clone()
	return nil
}

// Get retrieves a generation by its ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Generation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gen, ok := r.generations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return gen.Clone(), nil
}

// Update applies a partial mutation and returns the updated record.
func (r *MemoryRepository) Update(_ context.Context, id string, upd Update) (*Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen, ok := r.generations[id]
	if !ok {
		return nil, ErrNotFound
	}

	if upd.Status != nil {
		gen.Status = *upd.Status
	}
	if upd.ProviderJobID != nil {
		gen.ProviderJobID = *upd.ProviderJobID
	}
	if upd.VideoURL != nil {
		gen.VideoURL = *upd.VideoURL
	}
	if upd.ErrorMessage != nil {
		gen.ErrorMessage = *upd.ErrorMessage
	}
	for k, v := range upd.Metadata {
		gen.Metadata[k] = v
	}
	gen.UpdatedAt = time.Now()

	return gen.Clone(), nil
}

// List returns all generations in the repository.
// Returns clones to prevent external mutations.
func (r *MemoryRepository) List(_ context.Context) ([]*Generation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Generation, 0, len(r.generations))
	for _, gen := range r.generations {
		result = append(result, gen.Clone())
	}
	return result, nil
}
