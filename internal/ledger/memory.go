package ledger

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryLedger implements Ledger.
var _ Ledger = (*MemoryLedger)(nil)

// entry records one debit for audit purposes.
type entry struct {
	UserID string
	Amount int64
	Reason string
	At     time.Time
}

// MemoryLedger is an in-memory implementation of Ledger.
// Suitable for development and testing; swap for the billing service's
// client in production.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	history  []entry
}

// NewMemoryLedger creates a new in-memory token ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
	}
}

// Credit adds tokens to a user's balance, creating the account if needed.
func (l *MemoryLedger) Credit(_ context.Context, userID string, amount int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return l.balances[userID]
}

// GetBalance returns the user's current token balance.
func (l *MemoryLedger) GetBalance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return balance, nil
}

// Debit subtracts amount from the user's balance and returns the new balance.
func (l *MemoryLedger) Debit(_ context.Context, userID string, amount int64, reason string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	if balance < amount {
		return balance, ErrInsufficientBalance
	}
	l.balances[userID] = balance - amount
	l.history = append(l.history, entry{
		UserID: userID,
		Amount: amount,
		Reason: reason,
		At:     time.Now(),
	})
	return l.balances[userID], nil
}

// DebitCount returns how many debits have been recorded for the user.
func (l *MemoryLedger) DebitCount(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.history {
		if e.UserID == userID {
			n++
		}
	}
	return n
}
