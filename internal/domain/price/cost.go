package price

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/usagebilling/core/internal/types"
)

// Cost is the cumulative charge, in minor currency units, for billing
// quantity 0..qty against this price's formula. RangeCost(from, to) —
// Cost(to) minus Cost(from) — is how a graduated tier ladder prices a
// subrange that doesn't start at zero (e.g. the overage left after a
// grant's free allowance has already covered the first N units).
func (p *Price) Cost(qty decimal.Decimal) decimal.Decimal {
	if qty.Sign() <= 0 {
		return decimal.Zero
	}

	switch p.BillingModel {
	case types.BillingModelFlatFee:
		return qty.Mul(decimal.NewFromInt(int64(p.Amount)))

	case types.BillingModelPackage:
		units := p.packagedQuantity(qty)
		return units.Mul(decimal.NewFromInt(int64(p.Amount)))

	case types.BillingModelTiered:
		if p.TierMode != nil && *p.TierMode == types.TierModeVolume {
			return p.volumeCost(qty)
		}
		return p.graduatedCost(qty)

	default:
		return decimal.Zero
	}
}

// RangeCost is the cost of billing the subrange (from, to] — the
// difference between the cumulative cost function evaluated at the two
// endpoints.
func (p *Price) RangeCost(from, to decimal.Decimal) decimal.Decimal {
	if to.LessThanOrEqual(from) {
		return decimal.Zero
	}
	return p.Cost(to).Sub(p.Cost(from))
}

// packagedQuantity rounds qty to whole package units, per Transform.Round
// (down, nearest, or up by default).
func (p *Price) packagedQuantity(qty decimal.Decimal) decimal.Decimal {
	if p.Transform == nil || p.Transform.DivideBy <= 0 {
		return qty
	}
	divideBy := decimal.NewFromInt(int64(p.Transform.DivideBy))
	raw, _ := qty.Div(divideBy).Float64()

	switch p.Transform.Round {
	case types.RoundDown:
		return decimal.NewFromInt(int64(math.Floor(raw)))
	case types.RoundNearest:
		return decimal.NewFromInt(int64(math.Round(raw)))
	default: // types.RoundUp
		return decimal.NewFromInt(int64(math.Ceil(raw)))
	}
}

// graduatedCost charges each tier's own unit rate against the slice of
// quantity that falls within it (slab pricing).
func (p *Price) graduatedCost(qty decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	remaining := qty
	floor := decimal.Zero

	for _, tier := range p.Tiers {
		if remaining.Sign() <= 0 {
			break
		}

		upTo := decimal.NewFromInt(math.MaxInt64)
		if tier.UpTo != nil {
			upTo = decimal.NewFromInt(int64(*tier.UpTo))
		}
		capacity := upTo.Sub(floor)
		if capacity.Sign() <= 0 {
			continue
		}

		tierQty := remaining
		if tierQty.GreaterThan(capacity) {
			tierQty = capacity
		}

		total = total.Add(tierQty.Mul(decimal.NewFromInt(int64(tier.UnitAmount))))
		if tier.FlatAmount != nil {
			total = total.Add(decimal.NewFromInt(int64(*tier.FlatAmount)))
		}

		remaining = remaining.Sub(tierQty)
		floor = upTo
	}
	return total
}

// volumeCost charges the entire quantity at the single tier's rate the
// final unit falls into.
func (p *Price) volumeCost(qty decimal.Decimal) decimal.Decimal {
	for _, tier := range p.Tiers {
		if tier.UpTo == nil || qty.LessThanOrEqual(decimal.NewFromInt(int64(*tier.UpTo))) {
			total := qty.Mul(decimal.NewFromInt(int64(tier.UnitAmount)))
			if tier.FlatAmount != nil {
				total = total.Add(decimal.NewFromInt(int64(*tier.FlatAmount)))
			}
			return total
		}
	}
	return decimal.Zero
}
