package topup

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/virtusim/virtusim/internal/ledger"
	"github.com/virtusim/virtusim/internal/payment"
)

// Handler exposes the payment-crediting endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a topup handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type creditRequest struct {
	Reference string `json:"reference"`
	AccountID string `json:"account_id"`
}

// Credit verifies a payment reference and credits the derived coins.
// Replays of an already-credited reference return 200 with a duplicate
// status, since the original credit landed.
func (h *Handler) Credit(c *fiber.Ctx) error {
	var req creditRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	outcome, err := h.service.CreditFromPayment(c.UserContext(), req.Reference, req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, "reference and account_id are required")
		case errors.Is(err, ErrAmountTooSmall):
			return fiber.NewError(http.StatusBadRequest, "payment amount below one coin")
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		case errors.Is(err, ledger.ErrConflict):
			return fiber.NewError(http.StatusConflict, "conflicting concurrent request, retry")
		case errors.Is(err, payment.ErrVerification):
			return fiber.NewError(http.StatusBadGateway, "payment verification failed")
		default:
			return fiber.NewError(http.StatusInternalServerError, "credit failed")
		}
	}

	return c.JSON(fiber.Map{
		"status":    outcome.Status,
		"reference": outcome.Reference,
		"coins":     outcome.Coins,
		"balance":   outcome.NewBalance,
	})
}
