// Package pricing computes the effective unit price of a listing at a point
// in time. It is pure: no I/O, no clock access, deterministic for identical
// inputs.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/agriconnect/market-core/internal/core/domain"
)

// Effective discount is capped at 50% regardless of the stored percent.
var minDiscountFactor = decimal.NewFromFloat(0.5)

type Quote struct {
	UnitPrice    decimal.Decimal
	IsDiscounted bool
}

// EffectivePrice returns the price a buyer pays per unit at the given time.
// An urgent deal applies only while unexpired; the discount factor is floored
// at 0.5 and the result rounded to 2 decimal places.
func EffectivePrice(l *domain.Listing, at time.Time) Quote {
	if !l.IsUrgentDeal || l.DiscountPercent == nil {
		return Quote{UnitPrice: l.PricePerUnit}
	}
	if l.DealExpiresAt != nil && !at.Before(*l.DealExpiresAt) {
		return Quote{UnitPrice: l.PricePerUnit}
	}

	percent := *l.DiscountPercent
	if percent <= 0 {
		return Quote{UnitPrice: l.PricePerUnit}
	}

	factor := decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(percent)).Div(decimal.NewFromInt(100)))
	if factor.LessThan(minDiscountFactor) {
		factor = minDiscountFactor
	}

	return Quote{
		UnitPrice:    l.PricePerUnit.Mul(factor).Round(2),
		IsDiscounted: true,
	}
}

// Total returns the rounded order total for a quantity at the quoted price.
func (q Quote) Total(quantity int) decimal.Decimal {
	return q.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
