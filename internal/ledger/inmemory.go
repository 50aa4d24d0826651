package ledger

import (
	"context"
	"sync"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]int64
	credits  map[string]CreditResult
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit
// tests and local development without Postgres.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances: make(map[string]int64),
		credits:  make(map[string]CreditResult),
	}
}

func (l *inMemoryLedger) Balance(_ context.Context, accountID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[accountID]
	if !exists {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) TryDebit(_ context.Context, accountID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, exists := l.balances[accountID]
	if !exists {
		return 0, ErrAccountNotFound
	}
	if amount == 0 {
		return balance, nil
	}
	if balance < amount {
		return 0, ErrInsufficientFunds
	}

	balance -= amount
	l.balances[accountID] = balance
	return balance, nil
}

func (l *inMemoryLedger) Credit(_ context.Context, accountID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, exists := l.balances[accountID]
	if !exists {
		return 0, ErrAccountNotFound
	}

	balance += amount
	l.balances[accountID] = balance
	return balance, nil
}

func (l *inMemoryLedger) CreditOnce(_ context.Context, paymentRef, accountID string, amount int64) (CreditResult, error) {
	if amount < 0 {
		return CreditResult{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, exists := l.balances[accountID]
	if !exists {
		return CreditResult{}, ErrAccountNotFound
	}

	if _, seen := l.credits[paymentRef]; seen {
		return CreditResult{Applied: false, NewBalance: balance}, ErrDuplicatePayment
	}

	balance += amount
	l.balances[accountID] = balance

	res := CreditResult{Applied: true, NewBalance: balance}
	l.credits[paymentRef] = res
	return res, nil
}
