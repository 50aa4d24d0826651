package purchase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/virtusim/virtusim/internal/ledger"
	"github.com/virtusim/virtusim/internal/logging"
	"github.com/virtusim/virtusim/internal/pricing"
	"github.com/virtusim/virtusim/internal/provider"
)

func newTestService(gw provider.Gateway, led ledger.Ledger) *Service {
	engine := pricing.NewEngine(gw, pricing.Multiplicative{Factor: 1.5})
	return NewService(engine, led, gw, NewMemoryRepository(), nil, logging.Discard())
}

func TestPurchaseNumber(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 100)

	svc := newTestService(gw, led)

	res, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if res.PriceCoins != 45 {
		t.Fatalf("expected price 45, got %d", res.PriceCoins)
	}
	if res.NewBalance != 55 {
		t.Fatalf("expected balance 55, got %d", res.NewBalance)
	}
	if res.PhoneNumber == "" || res.OrderID == "" {
		t.Fatalf("incomplete result: %+v", res)
	}

	order, err := svc.GetOrder(ctx, res.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.State != StateAwaitingCode {
		t.Fatalf("expected state %s, got %s", StateAwaitingCode, order.State)
	}
	if order.ProviderOrderID == "" {
		t.Fatal("provider order id not recorded")
	}
}

func TestPurchaseNumberInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 44)

	svc := newTestService(gw, led)

	_, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 44 {
		t.Fatalf("failed purchase changed balance: %d", balance)
	}
}

func TestPurchaseNumberNotAvailable(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 1_000)

	svc := newTestService(gw, led)

	_, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "zz"})
	if !errors.Is(err, provider.ErrNotAvailable) {
		t.Fatalf("expected not available, got %v", err)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 1_000 {
		t.Fatalf("unavailable quote changed balance: %d", balance)
	}
}

func TestPurchaseNumberRefundsOnAcquisitionFailure(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	gw.FailAcquire = true
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 100)

	svc := newTestService(gw, led)

	_, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if !errors.Is(err, provider.ErrAcquisitionFailed) {
		t.Fatalf("expected acquisition failure, got %v", err)
	}
	// debit then refund nets to zero
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 100 {
		t.Fatalf("expected balance restored to 100, got %d", balance)
	}
}

// errGateway fails acquisition with a transport-level error after
// advertising a price.
type errGateway struct {
	*provider.Static
	acquireErr error
}

func (g *errGateway) AcquireNumber(_ context.Context, _, _ string) (provider.Acquisition, error) {
	return provider.Acquisition{}, g.acquireErr
}

func TestPurchaseNumberRefundsOnTransportError(t *testing.T) {
	ctx := context.Background()
	gw := &errGateway{Static: provider.NewStatic(), acquireErr: errors.New("connection reset")}
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 100)

	svc := newTestService(gw, led)

	_, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 100 {
		t.Fatalf("expected balance restored to 100, got %d", balance)
	}
}

// blockingGateway parks acquisition until the caller's context expires.
type blockingGateway struct {
	*provider.Static
}

func (g *blockingGateway) AcquireNumber(ctx context.Context, _, _ string) (provider.Acquisition, error) {
	<-ctx.Done()
	return provider.Acquisition{}, ctx.Err()
}

func TestPurchaseNumberRefundsAfterDeadline(t *testing.T) {
	gw := &blockingGateway{Static: provider.NewStatic()}
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 100)

	svc := newTestService(gw, led)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	// the refund runs on a detached context, so the expired deadline must
	// not have stranded the debit
	if balance, _ := led.Balance(context.Background(), "acct-1"); balance != 100 {
		t.Fatalf("expected balance restored to 100, got %d", balance)
	}
}

func TestConcurrentPurchasesExactBalance(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 45) // exactly one quoted price

	svc := newTestService(gw, led)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, short int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrInsufficientFunds):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || short != 1 {
		t.Fatalf("expected one success and one insufficient-funds, got ok=%d short=%d", ok, short)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}

// conflictLedger reports a store conflict for a fixed number of debit
// attempts before delegating to the wrapped ledger.
type conflictLedger struct {
	ledger.Ledger
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (l *conflictLedger) TryDebit(ctx context.Context, accountID string, amount int64) (int64, error) {
	l.mu.Lock()
	l.attempts++
	fail := l.attempts <= l.conflicts
	l.mu.Unlock()
	if fail {
		return 0, ledger.ErrConflict
	}
	return l.Ledger.TryDebit(ctx, accountID, amount)
}

func (l *conflictLedger) debitAttempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

func TestPurchaseNumberRetriesStoreConflicts(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	inner := ledger.NewInMemory()
	ledger.SeedBalance(inner, "acct-1", 100)
	led := &conflictLedger{Ledger: inner, conflicts: 2}

	svc := newTestService(gw, led)

	res, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if err != nil {
		t.Fatalf("purchase after transient conflicts: %v", err)
	}
	if res.NewBalance != 55 {
		t.Fatalf("expected balance 55, got %d", res.NewBalance)
	}
	if got := led.debitAttempts(); got != 3 {
		t.Fatalf("expected 3 debit attempts, got %d", got)
	}
}

func TestPurchaseNumberConflictRetriesBounded(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	inner := ledger.NewInMemory()
	ledger.SeedBalance(inner, "acct-1", 100)
	led := &conflictLedger{Ledger: inner, conflicts: 100}

	svc := newTestService(gw, led)

	_, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected store conflict to surface, got %v", err)
	}
	if got := led.debitAttempts(); got != 3 {
		t.Fatalf("expected exactly 3 debit attempts, got %d", got)
	}
	if balance, _ := inner.Balance(ctx, "acct-1"); balance != 100 {
		t.Fatalf("conflicted purchase changed balance: %d", balance)
	}
}

// conflictRepo fails order creation with a store conflict before
// delegating to the wrapped repository.
type conflictRepo struct {
	Repository
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (r *conflictRepo) Create(ctx context.Context, order Order) error {
	r.mu.Lock()
	r.attempts++
	fail := r.attempts <= r.conflicts
	r.mu.Unlock()
	if fail {
		return ledger.ErrConflict
	}
	return r.Repository.Create(ctx, order)
}

func TestPurchaseNumberRetriesOrderStoreConflict(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 100)

	engine := pricing.NewEngine(gw, pricing.Multiplicative{Factor: 1.5})
	repo := &conflictRepo{Repository: NewMemoryRepository(), conflicts: 1}
	svc := NewService(engine, led, gw, repo, nil, logging.Discard())

	res, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if err != nil {
		t.Fatalf("purchase after order-store conflict: %v", err)
	}
	// the conflicted attempt refunded its debit before the retry
	if res.NewBalance != 55 {
		t.Fatalf("expected balance 55, got %d", res.NewBalance)
	}
	if balance, _ := led.Balance(ctx, "acct-1"); balance != 55 {
		t.Fatalf("expected balance 55 in ledger, got %d", balance)
	}
}

func TestPollCode(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 100)

	svc := newTestService(gw, led)

	res, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// still waiting: state unchanged
	poll, err := svc.PollCode(ctx, res.OrderID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if poll.State != StateAwaitingCode || poll.Code != "" {
		t.Fatalf("unexpected poll result: %+v", poll)
	}

	order, _ := svc.GetOrder(ctx, res.OrderID)
	gw.DeliverCode(order.ProviderOrderID, "739184")

	poll, err = svc.PollCode(ctx, res.OrderID)
	if err != nil {
		t.Fatalf("poll after delivery: %v", err)
	}
	if poll.State != StateDelivered || poll.Code != "739184" {
		t.Fatalf("expected delivered code, got %+v", poll)
	}

	// repolling a delivered order keeps returning the code
	poll, err = svc.PollCode(ctx, res.OrderID)
	if err != nil {
		t.Fatalf("repoll: %v", err)
	}
	if poll.Code != "739184" {
		t.Fatalf("expected code on repoll, got %+v", poll)
	}
}

func TestPollCodeUnknownOrder(t *testing.T) {
	gw := provider.NewStatic()
	led := ledger.NewInMemory()
	svc := newTestService(gw, led)

	if _, err := svc.PollCode(context.Background(), "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
}

func TestPollCodeFailedOrder(t *testing.T) {
	ctx := context.Background()
	gw := provider.NewStatic()
	gw.FailAcquire = true
	led := ledger.NewInMemory()
	ledger.SeedBalance(led, "acct-1", 100)

	svc := newTestService(gw, led)

	_, err := svc.PurchaseNumber(ctx, PurchaseInput{AccountID: "acct-1", Service: "telegram", Country: "us"})
	if err == nil {
		t.Fatal("expected purchase to fail")
	}

	// find the failed order through the repository
	repo := svc.orders.(*memoryRepository)
	repo.mu.RLock()
	var orderID string
	for id := range repo.orders {
		orderID = id
	}
	repo.mu.RUnlock()

	if _, err := svc.PollCode(ctx, orderID); !errors.Is(err, ErrOrderFailed) {
		t.Fatalf("expected order failed, got %v", err)
	}
}
