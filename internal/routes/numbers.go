package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/virtusim/virtusim/internal/purchase"
)

// RegisterNumberRoutes wires pricing quotes, number purchase and SMS polling.
func RegisterNumberRoutes(r fiber.Router, h *purchase.Handler) {
	r.Get("/prices/:service/:country", h.Quote)
	r.Post("/numbers", h.Purchase)
	r.Get("/numbers/:orderId/sms", h.PollSMS)
}
