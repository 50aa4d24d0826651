package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/virtusim/virtusim/internal/ledger"
	"github.com/virtusim/virtusim/internal/metrics"
	"github.com/virtusim/virtusim/internal/notification"
	"github.com/virtusim/virtusim/internal/pricing"
	"github.com/virtusim/virtusim/internal/provider"
)

var (
	// ErrValidation rejects malformed requests before the ledger or the
	// provider is touched.
	ErrValidation = errors.New("invalid request")

	// ErrOrderFailed indicates the order terminated in acquisition failure
	// and has no code to poll for.
	ErrOrderFailed = errors.New("order failed before a number was acquired")
)

// Ledger conflicts are retried from the top this many times before
// surfacing to the caller.
const maxConflictRetries = 3

// refundTimeout bounds the compensating credit issued after a failed
// acquisition. The refund runs on a context detached from the caller so a
// cancelled request cannot strand the debited coins.
const refundTimeout = 10 * time.Second

// Service coordinates the purchase saga: quote, atomic debit, provider
// acquisition and, when acquisition fails, the compensating refund.
type Service struct {
	engine   *pricing.Engine
	ledger   ledger.Ledger
	gateway  provider.Gateway
	orders   Repository
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a purchase coordinator.
func NewService(engine *pricing.Engine, ledgerBackend ledger.Ledger, gateway provider.Gateway, orders Repository, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{
		engine:   engine,
		ledger:   ledgerBackend,
		gateway:  gateway,
		orders:   orders,
		notifier: notifier,
		logger:   logger,
	}
}

// PurchaseInput captures the data needed to buy a number.
type PurchaseInput struct {
	AccountID string
	Service   string
	Country   string
}

// PurchaseResult describes a successful purchase.
type PurchaseResult struct {
	OrderID     string
	PhoneNumber string
	PriceCoins  int64
	NewBalance  int64
}

// QuotePrice produces a coin price for a service/country pair without
// touching any state.
func (s *Service) QuotePrice(ctx context.Context, service, country string) (pricing.Quote, error) {
	if service == "" || country == "" {
		return pricing.Quote{}, fmt.Errorf("%w: service and country are required", ErrValidation)
	}
	return s.engine.Quote(ctx, service, country)
}

// PurchaseNumber runs the full saga. The debit is atomic, so concurrent
// purchases against the same account can never overspend; a failed
// acquisition refunds the exact reserved amount before the order is marked
// terminal, whatever the failure mode was.
func (s *Service) PurchaseNumber(ctx context.Context, input PurchaseInput) (PurchaseResult, error) {
	if input.AccountID == "" || input.Service == "" || input.Country == "" {
		return PurchaseResult{}, fmt.Errorf("%w: account, service and country are required", ErrValidation)
	}

	var res PurchaseResult
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		res, err = s.purchaseOnce(ctx, input)
		if !errors.Is(err, ledger.ErrConflict) {
			return res, err
		}
		s.logger.Warn("purchase hit store conflict, retrying",
			"account_id", input.AccountID, "attempt", attempt+1)
	}
	return res, err
}

func (s *Service) purchaseOnce(ctx context.Context, input PurchaseInput) (PurchaseResult, error) {
	quote, err := s.engine.Quote(ctx, input.Service, input.Country)
	if err != nil {
		s.countPurchase(err)
		return PurchaseResult{}, err
	}

	newBalance, err := s.ledger.TryDebit(ctx, input.AccountID, quote.Coins)
	if err != nil {
		s.countPurchase(err)
		return PurchaseResult{}, err
	}

	now := time.Now().UTC()
	order := Order{
		ID:        uuid.NewString(),
		AccountID: input.AccountID,
		Service:   input.Service,
		Country:   input.Country,
		Price:     quote.Coins,
		State:     StateReserved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.refund(ctx, order)
		return PurchaseResult{}, fmt.Errorf("persist order: %w", err)
	}

	acq, err := s.gateway.AcquireNumber(ctx, input.Service, input.Country)
	if err != nil {
		// Transport failures and explicit provider refusals roll back the
		// same way: the coins go back before the order turns terminal.
		s.refund(ctx, order)
		order.State = StateAcquisitionFailed
		if updErr := s.orders.Update(ctx, order); updErr != nil {
			s.logger.Error("mark order failed", "order_id", order.ID, "error", updErr)
		}
		err = classifyAcquireErr(err)
		s.countPurchase(err)
		return PurchaseResult{}, err
	}

	order.State = StateAwaitingCode
	order.ProviderOrderID = acq.OrderID
	order.PhoneNumber = acq.Number
	if err := s.orders.Update(ctx, order); err != nil {
		s.logger.Error("record acquisition", "order_id", order.ID, "error", err)
	}

	metrics.PurchasesTotal.WithLabelValues("purchased").Inc()
	return PurchaseResult{
		OrderID:     order.ID,
		PhoneNumber: acq.Number,
		PriceCoins:  quote.Coins,
		NewBalance:  newBalance,
	}, nil
}

// refund credits the exact reserved amount back to the account. It is an
// additive credit, never a restore of a previously read balance, so any
// concurrent legitimate change survives. The caller's cancellation is
// stripped: a deadline that killed the acquisition must not also kill the
// rollback.
func (s *Service) refund(ctx context.Context, order Order) {
	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		_, err = s.ledger.Credit(refundCtx, order.AccountID, order.Price)
		if !errors.Is(err, ledger.ErrConflict) {
			break
		}
	}
	if err != nil {
		// The debit stands with no resource delivered. Loud log so the
		// discrepancy is found by reconciliation.
		metrics.RefundsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("compensating refund failed",
			"order_id", order.ID, "account_id", order.AccountID, "amount", order.Price, "error", err)
		return
	}
	metrics.RefundsTotal.WithLabelValues("applied").Inc()
}

// PollResult is the outcome of an on-demand status poll.
type PollResult struct {
	OrderID string
	State   string
	Code    string
}

// PollCode checks the provider for a received activation code. A received
// code moves the order to DELIVERED; while the provider reports waiting
// the order state is left unchanged.
func (s *Service) PollCode(ctx context.Context, orderID string) (PollResult, error) {
	if orderID == "" {
		return PollResult{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return PollResult{}, err
	}

	switch order.State {
	case StateDelivered:
		// Polling a delivered order keeps returning the code.
		return PollResult{OrderID: order.ID, State: StateDelivered, Code: order.SMSCode}, nil
	case StateAcquisitionFailed:
		return PollResult{}, ErrOrderFailed
	}

	status, err := s.gateway.SMSStatus(ctx, order.ProviderOrderID)
	if err != nil {
		return PollResult{}, err
	}

	if status.State != provider.SMSReceived {
		return PollResult{OrderID: order.ID, State: order.State}, nil
	}

	order.State = StateDelivered
	order.SMSCode = status.Code
	if err := s.orders.Update(ctx, order); err != nil {
		return PollResult{}, fmt.Errorf("record delivered code: %w", err)
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindCodeDelivered,
			Destination: order.AccountID,
			Body:        fmt.Sprintf("Activation code received for order %s", order.ID),
		})
	}

	return PollResult{OrderID: order.ID, State: StateDelivered, Code: status.Code}, nil
}

// GetOrder returns the stored order, mainly for the transport layer.
func (s *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return s.orders.Get(ctx, orderID)
}

func classifyAcquireErr(err error) error {
	switch {
	case errors.Is(err, provider.ErrAcquisitionFailed), errors.Is(err, provider.ErrNotAvailable):
		return err
	case errors.Is(err, provider.ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", provider.ErrUnavailable, err)
	}
}

func (s *Service) countPurchase(err error) {
	switch {
	case errors.Is(err, ledger.ErrConflict):
		// retried from the top; only the final outcome is counted
	case errors.Is(err, ledger.ErrInsufficientFunds):
		metrics.PurchasesTotal.WithLabelValues("insufficient_funds").Inc()
	case errors.Is(err, provider.ErrNotAvailable):
		metrics.PurchasesTotal.WithLabelValues("not_available").Inc()
	case errors.Is(err, provider.ErrAcquisitionFailed):
		metrics.PurchasesTotal.WithLabelValues("acquisition_failed").Inc()
	case errors.Is(err, provider.ErrUnavailable):
		metrics.PurchasesTotal.WithLabelValues("provider_unavailable").Inc()
	default:
		metrics.PurchasesTotal.WithLabelValues("error").Inc()
	}
}
