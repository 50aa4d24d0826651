package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/virtusim/virtusim/internal/topup"
)

// RegisterPaymentRoutes wires the payment-crediting endpoint.
func RegisterPaymentRoutes(r fiber.Router, h *topup.Handler) {
	r.Post("/payments/verify", h.Credit)
}
