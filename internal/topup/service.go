package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/virtusim/virtusim/internal/ledger"
	"github.com/virtusim/virtusim/internal/metrics"
	"github.com/virtusim/virtusim/internal/notification"
	"github.com/virtusim/virtusim/internal/payment"
)

var (
	// ErrValidation rejects malformed requests before the gateway is called.
	ErrValidation = errors.New("invalid request")

	// ErrAmountTooSmall indicates the verified amount converts to less
	// than one whole coin; no credit is applied.
	ErrAmountTooSmall = errors.New("payment amount below one coin")
)

// Credit outcome statuses reported to the transport layer.
const (
	StatusCredited  = "credited"
	StatusDuplicate = "duplicate"
)

const maxConflictRetries = 3

// Service converts verified external payments into coin credits exactly
// once per payment reference.
type Service struct {
	verifier     payment.Verifier
	ledger       ledger.Ledger
	minorPerCoin int64
	notifier     notification.Notifier
	logger       *slog.Logger
}

// NewService constructs the payment-crediting coordinator. minorPerCoin is
// the fixed rate of gateway minor currency units per coin.
func NewService(verifier payment.Verifier, ledgerBackend ledger.Ledger, minorPerCoin int64, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if minorPerCoin <= 0 {
		return nil, fmt.Errorf("minor units per coin must be positive, got %d", minorPerCoin)
	}
	return &Service{
		verifier:     verifier,
		ledger:       ledgerBackend,
		minorPerCoin: minorPerCoin,
		notifier:     notifier,
		logger:       logger,
	}, nil
}

// Outcome describes a processed payment credit.
type Outcome struct {
	Status     string
	Reference  string
	Coins      int64
	NewBalance int64
}

// CreditFromPayment verifies the reference with the gateway and credits
// the derived coins. Crediting is keyed by the reference, so gateway
// webhook retries and double submissions observe the duplicate outcome and
// change nothing.
func (s *Service) CreditFromPayment(ctx context.Context, reference, accountID string) (Outcome, error) {
	if reference == "" || accountID == "" {
		return Outcome{}, fmt.Errorf("%w: reference and account are required", ErrValidation)
	}

	verification, err := s.verifier.Verify(ctx, reference)
	if err != nil {
		metrics.PaymentCreditsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, payment.ErrVerification) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("%w: %v", payment.ErrVerification, err)
	}
	if !verification.Verified {
		metrics.PaymentCreditsTotal.WithLabelValues("rejected").Inc()
		return Outcome{}, fmt.Errorf("%w: gateway rejected reference", payment.ErrVerification)
	}

	coins := verification.AmountMinor / s.minorPerCoin
	if coins < 1 {
		metrics.PaymentCreditsTotal.WithLabelValues("too_small").Inc()
		return Outcome{}, fmt.Errorf("%w: %d minor units at %d per coin",
			ErrAmountTooSmall, verification.AmountMinor, s.minorPerCoin)
	}

	var res ledger.CreditResult
	for attempt := 0; ; attempt++ {
		res, err = s.ledger.CreditOnce(ctx, reference, accountID, coins)
		if errors.Is(err, ledger.ErrConflict) && attempt < maxConflictRetries-1 {
			s.logger.Warn("credit hit store conflict, retrying", "reference", reference, "attempt", attempt+1)
			continue
		}
		break
	}

	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrDuplicatePayment):
		// The original credit already landed: report a success no-op.
		metrics.PaymentCreditsTotal.WithLabelValues("duplicate").Inc()
		return Outcome{Status: StatusDuplicate, Reference: reference, NewBalance: res.NewBalance}, nil
	default:
		metrics.PaymentCreditsTotal.WithLabelValues("error").Inc()
		return Outcome{}, err
	}

	metrics.PaymentCreditsTotal.WithLabelValues("credited").Inc()
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPaymentCredited,
			Destination: accountID,
			Body:        fmt.Sprintf("Credited %d coins for payment %s", coins, reference),
		})
	}

	return Outcome{Status: StatusCredited, Reference: reference, Coins: coins, NewBalance: res.NewBalance}, nil
}
