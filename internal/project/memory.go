package project

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// Suitable for development and testing.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewMemoryStore creates a new in-memory project store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*Project),
	}
}

// Add stores a project, assigning an ID if none is set, and returns it.
func (s *MemoryStore) Add(p Project) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.projects[p.ID] = &p
	clone := p
	return &clone
}

// GetProject returns the project if it exists and is owned by userID.
func (s *MemoryStore) GetProject(_ context.Context, projectID, userID string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}
	clone := *p
	return &clone, nil
}
