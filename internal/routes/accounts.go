package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/virtusim/virtusim/internal/ledger"
)

// RegisterAccountRoutes wires balance lookups. Accounts are provisioned
// outside this service; only the balance is readable here.
func RegisterAccountRoutes(r fiber.Router, ledgerBackend ledger.Ledger) {
	r.Get("/accounts/:accountId/balance", func(c *fiber.Ctx) error {
		balance, err := ledgerBackend.Balance(c.UserContext(), c.Params("accountId"))
		if err != nil {
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return fiber.NewError(http.StatusNotFound, "account not found")
			}
			return fiber.NewError(http.StatusInternalServerError, "balance lookup failed")
		}
		return c.JSON(fiber.Map{"account_id": c.Params("accountId"), "balance": balance})
	})
}
