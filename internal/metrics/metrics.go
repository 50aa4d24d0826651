package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PurchasesTotal counts number-purchase attempts by outcome
	// (purchased, insufficient_funds, acquisition_failed, provider_unavailable,
	// not_available, error).
	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtusim_purchases_total",
		Help: "Number purchase attempts by outcome.",
	}, []string{"outcome"})

	// PaymentCreditsTotal counts payment-credit attempts by outcome
	// (credited, duplicate, rejected, too_small, error).
	PaymentCreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtusim_payment_credits_total",
		Help: "Payment credit attempts by outcome.",
	}, []string{"outcome"})

	// RefundsTotal counts compensating refunds issued after failed
	// acquisitions, by result (applied, failed).
	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtusim_refunds_total",
		Help: "Compensating refunds after failed acquisitions.",
	}, []string{"result"})
)

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
