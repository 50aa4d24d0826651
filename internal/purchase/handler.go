package purchase

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/virtusim/virtusim/internal/ledger"
	"github.com/virtusim/virtusim/internal/provider"
)

// Handler exposes purchase endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a purchase handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type purchaseRequest struct {
	AccountID string `json:"account_id"`
	Service   string `json:"service"`
	Country   string `json:"country"`
}

// Quote returns the coin price for a service/country pair.
func (h *Handler) Quote(c *fiber.Ctx) error {
	quote, err := h.service.QuotePrice(c.UserContext(), c.Params("service"), c.Params("country"))
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, "service and country are required")
		case errors.Is(err, provider.ErrNotAvailable):
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"status": "not_available"})
		default:
			return fiber.NewError(http.StatusBadGateway, "provider unavailable")
		}
	}
	return c.JSON(quote)
}

// Purchase buys a number, debiting the account and rolling back on failure.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.PurchaseNumber(c.UserContext(), PurchaseInput{
		AccountID: req.AccountID,
		Service:   req.Service,
		Country:   req.Country,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, "account_id, service and country are required")
		case errors.Is(err, provider.ErrNotAvailable):
			return c.Status(http.StatusNotFound).JSON(fiber.Map{"status": "not_available"})
		case errors.Is(err, ledger.ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "account not found")
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusPaymentRequired, "insufficient funds")
		case errors.Is(err, ledger.ErrConflict):
			return fiber.NewError(http.StatusConflict, "conflicting concurrent request, retry")
		case errors.Is(err, provider.ErrAcquisitionFailed):
			return fiber.NewError(http.StatusBadGateway, "number acquisition failed")
		case errors.Is(err, provider.ErrUnavailable):
			return fiber.NewError(http.StatusBadGateway, "provider unavailable")
		default:
			return fiber.NewError(http.StatusInternalServerError, "purchase failed")
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"order_id":     res.OrderID,
		"phone_number": res.PhoneNumber,
		"price_coins":  res.PriceCoins,
		"balance":      res.NewBalance,
	})
}

// PollSMS checks for a received activation code.
func (h *Handler) PollSMS(c *fiber.Ctx) error {
	res, err := h.service.PollCode(c.UserContext(), c.Params("orderId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, "order id is required")
		case errors.Is(err, ErrOrderNotFound):
			return fiber.NewError(http.StatusNotFound, "order not found")
		case errors.Is(err, ErrOrderFailed):
			return fiber.NewError(http.StatusConflict, "order failed before acquisition")
		case errors.Is(err, provider.ErrUnavailable):
			return fiber.NewError(http.StatusBadGateway, "provider unavailable")
		default:
			return fiber.NewError(http.StatusInternalServerError, "poll failed")
		}
	}

	body := fiber.Map{"order_id": res.OrderID, "state": res.State}
	if res.Code != "" {
		body["code"] = res.Code
	}
	return c.JSON(body)
}
