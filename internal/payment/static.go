package payment

import (
	"context"
	"sync"
)

// Static is a verifier stub for tests and local development. References
// registered via Settle verify successfully; everything else is rejected.
type Static struct {
	mu      sync.RWMutex
	settled map[string]Verification
}

// NewStatic builds an empty stub verifier.
func NewStatic() *Static {
	return &Static{settled: make(map[string]Verification)}
}

// Settle registers a reference as verified for the given amount.
func (s *Static) Settle(reference string, amountMinor int64, currency string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled[reference] = Verification{Verified: true, AmountMinor: amountMinor, Currency: currency}
}

func (s *Static) Verify(_ context.Context, reference string) (Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.settled[reference]; ok {
		return v, nil
	}
	return Verification{Verified: false}, nil
}
