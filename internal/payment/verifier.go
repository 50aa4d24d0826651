package payment

import (
	"context"
	"errors"
)

// ErrVerification covers every unverifiable payment: the gateway rejected
// the reference, returned garbage, or was unreachable. The ledger is never
// touched when this error is returned.
var ErrVerification = errors.New("payment verification failed")

// Verification is the gateway's answer for one payment reference.
type Verification struct {
	Verified    bool
	AmountMinor int64
	Currency    string
}

// Verifier abstracts the external payment gateway's transaction
// verification API.
type Verifier interface {
	Verify(ctx context.Context, reference string) (Verification, error)
}
