// Package project provides the project lookup port consumed by the
// generation orchestrator. A project carries the source image a generation
// renders from.
package project

import (
	"context"
	"errors"
	"time"
)

// Static errors for project lookups.
var (
	// ErrNotFound is returned when no project exists with the given ID.
	ErrNotFound = errors.New("project: not found")
	// ErrForbidden is returned when the project is not owned by the caller.
	ErrForbidden = errors.New("project: forbidden")
)

// Project is the subset of a project record the generation core needs.
type Project struct {
	ID        string
	UserID    string
	Name      string
	ImageURL  string
	CreatedAt time.Time
}

// Store defines the project lookup port.
type Store interface {
	// GetProject returns the project with the given ID if it is owned by
	// userID. Returns ErrNotFound or ErrForbidden otherwise.
	GetProject(ctx context.Context, projectID, userID string) (*Project, error)
}
