package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/virtusim/virtusim/internal/provider"
)

// RegisterCatalogRoutes wires the read-only country/service passthrough.
// These endpoints are pure proxies over the provider catalog; no pricing
// or ledger state is involved.
func RegisterCatalogRoutes(r fiber.Router, gateway provider.Gateway) {
	r.Get("/countries", func(c *fiber.Ctx) error {
		countries, err := gateway.Countries(c.UserContext())
		if err != nil {
			return catalogErr(err)
		}
		return c.JSON(fiber.Map{"countries": countries})
	})

	r.Get("/services", func(c *fiber.Ctx) error {
		services, err := gateway.Services(c.UserContext())
		if err != nil {
			return catalogErr(err)
		}
		return c.JSON(fiber.Map{"services": services})
	})
}

func catalogErr(err error) error {
	if errors.Is(err, provider.ErrNotAvailable) {
		return fiber.NewError(http.StatusNotFound, "not available")
	}
	return fiber.NewError(http.StatusBadGateway, "provider unavailable")
}
