package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds occurs when an account balance cannot cover a
	// requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicatePayment indicates the payment reference has already been
	// credited and therefore the operation should be treated as idempotent.
	ErrDuplicatePayment = errors.New("duplicate payment reference")

	// ErrAccountNotFound indicates the account does not exist in the store.
	// Account provisioning happens outside this service.
	ErrAccountNotFound = errors.New("account not found")

	// ErrConflict signals a concurrent-write conflict detected by the store.
	// The whole operation is safe to retry from the top.
	ErrConflict = errors.New("concurrent store conflict")

	// ErrInvalidAmount rejects negative amounts before they reach the store.
	ErrInvalidAmount = errors.New("amount must be non-negative")
)

// CreditResult captures the outcome of an idempotent payment credit.
type CreditResult struct {
	Applied    bool
	NewBalance int64
}

// Ledger defines the contract implemented by account-balance backends
// (e.g. Postgres). All mutations are single atomic operations against the
// store; callers never read a balance and write a derived value back.
// Account provisioning is not part of the contract; the concrete stores
// expose helpers for it where operators need them.
type Ledger interface {
	Balance(ctx context.Context, accountID string) (int64, error)

	// TryDebit atomically checks and decrements the balance, returning the
	// new balance or ErrInsufficientFunds with no state change.
	TryDebit(ctx context.Context, accountID string, amount int64) (int64, error)

	// Credit atomically adds amount to the balance and returns the new
	// balance. Used for compensating refunds; never negative.
	Credit(ctx context.Context, accountID string, amount int64) (int64, error)

	// CreditOnce applies a credit keyed by a unique payment reference.
	// Repeated or concurrent calls with the same reference apply the credit
	// exactly once; later calls return Applied=false together with the
	// current balance and ErrDuplicatePayment.
	CreditOnce(ctx context.Context, paymentRef, accountID string, amount int64) (CreditResult, error)
}
