package pricing

import (
	"context"
	"time"

	"github.com/virtusim/virtusim/internal/provider"
)

// Quote is a computed final price for one service/country pair. Quotes are
// ephemeral: they are produced per request and never persisted.
type Quote struct {
	Service   string    `json:"service"`
	Country   string    `json:"country"`
	BasePrice float64   `json:"base_price"`
	Coins     int64     `json:"coins"`
	Policy    string    `json:"policy"`
	QuotedAt  time.Time `json:"quoted_at"`
}

// Engine turns provider base prices into final coin prices under the
// configured markup policy.
type Engine struct {
	gateway provider.Gateway
	policy  Policy
}

// NewEngine builds a pricing engine.
func NewEngine(gateway provider.Gateway, policy Policy) *Engine {
	return &Engine{gateway: gateway, policy: policy}
}

// Quote fetches the base price and applies the markup policy. Unavailable
// pairs propagate provider.ErrNotAvailable untouched so the transport layer
// can report availability rather than an error.
func (e *Engine) Quote(ctx context.Context, service, country string) (Quote, error) {
	base, err := e.gateway.ServicePrice(ctx, service, country)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Service:   service,
		Country:   country,
		BasePrice: base,
		Coins:     e.policy.Price(base),
		Policy:    e.policy.Name(),
		QuotedAt:  time.Now().UTC(),
	}, nil
}
