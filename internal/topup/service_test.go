package topup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/virtusim/virtusim/internal/ledger"
	"github.com/virtusim/virtusim/internal/logging"
	"github.com/virtusim/virtusim/internal/payment"
)

func newTestService(t *testing.T, verifier payment.Verifier, led ledger.Ledger) *Service {
	t.Helper()
	svc, err := NewService(verifier, led, 15, nil, logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCreditFromPayment(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 0)

	verifier := payment.NewStatic()
	verifier.Settle("ref-1", 22_500, "NGN")

	svc := newTestService(t, verifier, led)

	outcome, err := svc.CreditFromPayment(ctx, "ref-1", "acct-1")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if outcome.Status != StatusCredited {
		t.Fatalf("expected credited, got %s", outcome.Status)
	}
	// 22,500 minor units at 15 per coin
	if outcome.Coins != 1_500 {
		t.Fatalf("expected 1500 coins, got %d", outcome.Coins)
	}
	if outcome.NewBalance != 1_500 {
		t.Fatalf("expected balance 1500, got %d", outcome.NewBalance)
	}
}

func TestCreditFromPaymentIdempotent(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 0)

	verifier := payment.NewStatic()
	verifier.Settle("ref-1", 22_500, "NGN")

	svc := newTestService(t, verifier, led)

	if _, err := svc.CreditFromPayment(ctx, "ref-1", "acct-1"); err != nil {
		t.Fatalf("first credit: %v", err)
	}

	for i := 0; i < 5; i++ {
		outcome, err := svc.CreditFromPayment(ctx, "ref-1", "acct-1")
		if err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
		if outcome.Status != StatusDuplicate {
			t.Fatalf("replay %d: expected duplicate, got %s", i, outcome.Status)
		}
		if outcome.NewBalance != 1_500 {
			t.Fatalf("replay %d: balance drifted to %d", i, outcome.NewBalance)
		}
	}

	if balance, _ := led.Balance(ctx, "acct-1"); balance != 1_500 {
		t.Fatalf("expected balance 1500 after replays, got %d", balance)
	}
}

func TestCreditFromPaymentConcurrentRetries(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 0)

	verifier := payment.NewStatic()
	verifier.Settle("webhook-1", 1_500, "NGN")

	svc := newTestService(t, verifier, led)

	const workers = 6
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.CreditFromPayment(ctx, "webhook-1", "acct-1")
			if err != nil {
				t.Errorf("credit: %v", err)
				return
			}
			outcomes <- out
		}()
	}
	wg.Wait()
	close(outcomes)

	credited := 0
	for out := range outcomes {
		if out.Status == StatusCredited {
			credited++
		}
	}
	if credited != 1 {
		t.Fatalf("expected exactly one credited outcome, got %d", credited)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}
}

// conflictLedger reports a store conflict for a fixed number of credit
// attempts before delegating to the wrapped ledger.
type conflictLedger struct {
	ledger.Ledger
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (l *conflictLedger) CreditOnce(ctx context.Context, paymentRef, accountID string, amount int64) (ledger.CreditResult, error) {
	l.mu.Lock()
	l.attempts++
	fail := l.attempts <= l.conflicts
	l.mu.Unlock()
	if fail {
		return ledger.CreditResult{}, ledger.ErrConflict
	}
	return l.Ledger.CreditOnce(ctx, paymentRef, accountID, amount)
}

func (l *conflictLedger) creditAttempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

func TestCreditFromPaymentRetriesStoreConflicts(t *testing.T) {
	ctx := context.Background()
	inner := ledger.NewInMemory()
	ledger.SeedBalance(inner, "acct-1", 0)
	led := &conflictLedger{Ledger: inner, conflicts: 2}

	verifier := payment.NewStatic()
	verifier.Settle("ref-1", 22_500, "NGN")

	svc := newTestService(t, verifier, led)

	outcome, err := svc.CreditFromPayment(ctx, "ref-1", "acct-1")
	if err != nil {
		t.Fatalf("credit after transient conflicts: %v", err)
	}
	if outcome.Status != StatusCredited || outcome.NewBalance != 1_500 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if got := led.creditAttempts(); got != 3 {
		t.Fatalf("expected 3 credit attempts, got %d", got)
	}
}

func TestCreditFromPaymentConflictRetriesBounded(t *testing.T) {
	ctx := context.Background()
	inner := ledger.NewInMemory()
	ledger.SeedBalance(inner, "acct-1", 0)
	led := &conflictLedger{Ledger: inner, conflicts: 100}

	verifier := payment.NewStatic()
	verifier.Settle("ref-1", 22_500, "NGN")

	svc := newTestService(t, verifier, led)

	_, err := svc.CreditFromPayment(ctx, "ref-1", "acct-1")
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected store conflict to surface, got %v", err)
	}
	if got := led.creditAttempts(); got != 3 {
		t.Fatalf("expected exactly 3 credit attempts, got %d", got)
	}
	if balance, _ := inner.Balance(ctx, "acct-1"); balance != 0 {
		t.Fatalf("conflicted credit changed balance: %d", balance)
	}
}

func TestCreditFromPaymentUnverified(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 0)

	svc := newTestService(t, payment.NewStatic(), led)

	_, err := svc.CreditFromPayment(ctx, "unknown-ref", "acct-1")
	if !errors.Is(err, payment.ErrVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 0 {
		t.Fatalf("unverified payment changed balance: %d", balance)
	}
}

// failingVerifier simulates an unreachable gateway.
type failingVerifier struct{}

func (failingVerifier) Verify(context.Context, string) (payment.Verification, error) {
	return payment.Verification{}, errors.New("connection refused")
}

func TestCreditFromPaymentTransportFailure(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 0)

	svc := newTestService(t, failingVerifier{}, led)

	_, err := svc.CreditFromPayment(ctx, "ref-1", "acct-1")
	if !errors.Is(err, payment.ErrVerification) {
		t.Fatalf("expected verification error, got %v", err)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 0 {
		t.Fatalf("transport failure changed balance: %d", balance)
	}
}

func TestCreditFromPaymentTooSmall(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 0)

	verifier := payment.NewStatic()
	verifier.Settle("tiny", 10, "NGN") // below one coin at 15/coin

	svc := newTestService(t, verifier, led)

	_, err := svc.CreditFromPayment(ctx, "tiny", "acct-1")
	if !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("expected too-small error, got %v", err)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 0 {
		t.Fatalf("too-small payment changed balance: %d", balance)
	}
}

func TestCreditFromPaymentValidation(t *testing.T) {
	led := ledger.NewInMemory()
	svc := newTestService(t, payment.NewStatic(), led)

	if _, err := svc.CreditFromPayment(context.Background(), "", "acct-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.CreditFromPayment(context.Background(), "ref", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
