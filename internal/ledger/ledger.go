// Package ledger provides the token ledger port consumed by the generation
// orchestrator. Balances are per-user integer counts; the ledger itself is
// idempotency-unaware, so callers must not double-debit.
package ledger

import (
	"context"
	"errors"
)

// Static errors for ledger operations.
var (
	// ErrUserNotFound is returned when no balance exists for the user.
	ErrUserNotFound = errors.New("ledger: user not found")
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

// Ledger defines the token balance operations the core consumes.
// The balance is authoritative; callers never cache it across calls.
type Ledger interface {
	// GetBalance returns the user's current token balance.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// Debit subtracts amount from the user's balance and returns the new
	// balance. The reason is recorded for audit purposes.
	Debit(ctx context.Context, userID string, amount int64, reason string) (int64, error)
}
