package routes

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/virtusim/virtusim/internal/config"
	"github.com/virtusim/virtusim/internal/ledger"
	"github.com/virtusim/virtusim/internal/metrics"
	"github.com/virtusim/virtusim/internal/middleware"
	"github.com/virtusim/virtusim/internal/notification"
	"github.com/virtusim/virtusim/internal/payment"
	"github.com/virtusim/virtusim/internal/pricing"
	"github.com/virtusim/virtusim/internal/provider"
	"github.com/virtusim/virtusim/internal/purchase"
	"github.com/virtusim/virtusim/internal/topup"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Stub collaborators are a dev-only convenience.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cfg.ProviderBaseURL == "" {
			return fmt.Errorf("PROVIDER_BASE_URL is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cfg.PaymentBaseURL == "" {
			return fmt.Errorf("PAYMENT_BASE_URL is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{AllowOrigins: d.Cfg.AllowedOrigins}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// Collaborators
	var gateway provider.Gateway
	if d.Cfg.ProviderBaseURL != "" {
		gateway = provider.NewHTTPGateway(d.Cfg.ProviderBaseURL, d.Cfg.ProviderAPIKey, nil)
	} else {
		gateway = provider.NewStatic()
	}

	var verifier payment.Verifier
	if d.Cfg.PaymentBaseURL != "" {
		verifier = payment.NewHTTPVerifier(d.Cfg.PaymentBaseURL, d.Cfg.PaymentSecretKey, nil)
	} else {
		verifier = payment.NewStatic()
	}

	var ledgerBackend ledger.Ledger
	var orderRepo purchase.Repository
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		orderRepo = purchase.NewPostgresRepository(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		orderRepo = purchase.NewMemoryRepository()
	}

	policy, err := pricing.NewPolicy(pricing.Settings{
		Policy:         d.Cfg.Pricing.Policy,
		MarginFactor:   d.Cfg.Pricing.MarginFactor,
		FixedMarkup:    d.Cfg.Pricing.FixedMarkup,
		TierThreshold:  d.Cfg.Pricing.TierThreshold,
		TierPremium:    d.Cfg.Pricing.TierPremium,
		ProviderPerRef: d.Cfg.Pricing.ProviderPerRef,
		TargetPerRef:   d.Cfg.Pricing.TargetPerRef,
		TargetMarkup:   d.Cfg.Pricing.TargetMarkup,
		CoinsPerUnit:   d.Cfg.Pricing.CoinsPerUnit,
		RoundPoint:     d.Cfg.Pricing.RoundPoint,
		RoundBand:      d.Cfg.Pricing.RoundBand,
	})
	if err != nil {
		return fmt.Errorf("configure pricing: %w", err)
	}

	engine := pricing.NewEngine(gateway, policy)
	notifier := notification.NewLoggerNotifier(d.Logger)

	purchaseSvc := purchase.NewService(engine, ledgerBackend, gateway, orderRepo, notifier, d.Logger)
	topupSvc, err := topup.NewService(verifier, ledgerBackend, d.Cfg.MinorPerCoin, notifier, d.Logger)
	if err != nil {
		return fmt.Errorf("configure topup: %w", err)
	}

	purchaseHandler := purchase.NewHandler(purchaseSvc)
	topupHandler := topup.NewHandler(topupSvc)

	// API routes
	api := app.Group("/api/v1")
	RegisterCatalogRoutes(api, gateway)
	RegisterAccountRoutes(api, ledgerBackend)
	RegisterNumberRoutes(api, purchaseHandler)
	RegisterPaymentRoutes(api, topupHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
