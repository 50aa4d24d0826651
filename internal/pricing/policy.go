package pricing

import (
	"fmt"
	"math"
)

// Policy converts a provider base price into a final coin price. The four
// markup strategies that existed as separate deployments are modelled as
// interchangeable implementations selected by configuration.
type Policy interface {
	Name() string
	Price(base float64) int64
}

// ceilCoins rounds toward the next whole coin. A buyer is never charged a
// fractional coin short of true cost.
func ceilCoins(v float64) int64 {
	return int64(math.Ceil(v))
}

// Multiplicative applies a margin factor: final = ceil(base * Factor).
type Multiplicative struct {
	Factor float64
}

func (p Multiplicative) Name() string { return "multiplicative" }

func (p Multiplicative) Price(base float64) int64 {
	return ceilCoins(base * p.Factor)
}

// Additive applies a fixed markup in coins: final = ceil(base) + Markup.
type Additive struct {
	Markup int64
}

func (p Additive) Name() string { return "additive" }

func (p Additive) Price(base float64) int64 {
	return ceilCoins(base) + p.Markup
}

// Tiered charges a premium markup above a base-price threshold and a
// standard markup below it.
type Tiered struct {
	Threshold float64
	Standard  int64
	Premium   int64
}

func (p Tiered) Name() string { return "tiered" }

func (p Tiered) Price(base float64) int64 {
	markup := p.Standard
	if base > p.Threshold {
		markup = p.Premium
	}
	return ceilCoins(base) + markup
}

// CrossCurrency chains two fixed conversions around a fixed markup: the
// provider price is converted to the reference currency, marked up in the
// target currency and converted to coins. ProviderPerRef is provider units
// per reference unit, TargetPerRef is target units per reference unit.
type CrossCurrency struct {
	ProviderPerRef float64
	TargetPerRef   float64
	TargetMarkup   float64
	CoinsPerUnit   float64

	// RoundPoint/RoundBand implement the promotional round-number price:
	// a converted price within RoundBand coins of RoundPoint snaps to it.
	RoundPoint int64
	RoundBand  float64
}

func (p CrossCurrency) Name() string { return "cross_currency" }

func (p CrossCurrency) Price(base float64) int64 {
	ref := base / p.ProviderPerRef
	target := ref*p.TargetPerRef + p.TargetMarkup
	coins := target * p.CoinsPerUnit

	if p.RoundPoint > 0 && math.Abs(coins-float64(p.RoundPoint)) <= p.RoundBand {
		return p.RoundPoint
	}
	return ceilCoins(coins)
}

// Settings selects and parameterises a policy from configuration.
type Settings struct {
	Policy         string
	MarginFactor   float64
	FixedMarkup    int64
	TierThreshold  float64
	TierPremium    int64
	ProviderPerRef float64
	TargetPerRef   float64
	TargetMarkup   float64
	CoinsPerUnit   float64
	RoundPoint     int64
	RoundBand      float64
}

// NewPolicy builds the configured policy.
func NewPolicy(s Settings) (Policy, error) {
	switch s.Policy {
	case "multiplicative":
		if s.MarginFactor <= 1 {
			return nil, fmt.Errorf("margin factor must exceed 1, got %v", s.MarginFactor)
		}
		return Multiplicative{Factor: s.MarginFactor}, nil
	case "additive":
		if s.FixedMarkup < 0 {
			return nil, fmt.Errorf("fixed markup must be non-negative, got %d", s.FixedMarkup)
		}
		return Additive{Markup: s.FixedMarkup}, nil
	case "tiered":
		if s.TierThreshold <= 0 {
			return nil, fmt.Errorf("tier threshold must be positive, got %v", s.TierThreshold)
		}
		return Tiered{Threshold: s.TierThreshold, Standard: s.FixedMarkup, Premium: s.TierPremium}, nil
	case "cross_currency":
		if s.ProviderPerRef <= 0 || s.TargetPerRef <= 0 || s.CoinsPerUnit <= 0 {
			return nil, fmt.Errorf("cross-currency rates must be positive")
		}
		return CrossCurrency{
			ProviderPerRef: s.ProviderPerRef,
			TargetPerRef:   s.TargetPerRef,
			TargetMarkup:   s.TargetMarkup,
			CoinsPerUnit:   s.CoinsPerUnit,
			RoundPoint:     s.RoundPoint,
			RoundBand:      s.RoundBand,
		}, nil
	default:
		return nil, fmt.Errorf("unknown pricing policy %q", s.Policy)
	}
}
