package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/usagebilling/core/internal/domain/price"
)

// GrantAllowance is one active grant's contribution to a feature's
// waterfall pricing: the quantity it covers, at its priority. A nil Limit
// means unlimited — nothing past it is ever overage. Price is the grant's
// own rate override (e.g. a promotional grant billed at a different price
// than the subscription's base formula); when nil, the grant's covered
// quantity is billed against the shared base formula instead, continuing
// the same cumulative curve the overage slice picks up from.
type GrantAllowance struct {
	GrantID  string
	Priority int
	Limit    *int64
	Price    *price.Price
}

// Allocation is the quantity and cost attributed to one grant (or to
// overage, when GrantID is empty) after a waterfall pass.
type Allocation struct {
	GrantID   string
	Quantity  decimal.Decimal
	Amount    decimal.Decimal
	IsOverage bool
}

// Charge is the full waterfall pricing result for one item's quantity.
type Charge struct {
	Allocations []Allocation
	Subtotal    decimal.Decimal
}

// Waterfall consumes grants in descending priority (manual 100 first,
// subscription 10 last) to cover quantity, then prices whatever is left
// (the overage) against formula, tagging it isOverage.
//
// A grant with its own Price override bills its covered slice against that
// override from zero — it is a distinct rate plan, not a continuation of
// anything else. A grant with no override instead draws against formula,
// continuing the same cumulative curve the overage slice picks up from, so
// a graduated tier ladder is billed correctly across grant-covered and
// overage quantity alike: formula.RangeCost(0, a) + formula.RangeCost(a, b)
// == formula.RangeCost(0, b).
func Waterfall(quantity decimal.Decimal, grants []GrantAllowance, formula *price.Price) Charge {
	sorted := make([]GrantAllowance, len(grants))
	copy(sorted, grants)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	remaining := quantity
	formulaOffset := decimal.Zero
	subtotal := decimal.Zero
	allocations := make([]Allocation, 0, len(sorted)+1)

	priceSlice := func(g GrantAllowance, take decimal.Decimal) decimal.Decimal {
		if g.Price != nil {
			return g.Price.RangeCost(decimal.Zero, take)
		}
		if formula != nil {
			amount := formula.RangeCost(formulaOffset, formulaOffset.Add(take))
			formulaOffset = formulaOffset.Add(take)
			return amount
		}
		return decimal.Zero
	}

	for _, g := range sorted {
		if remaining.Sign() <= 0 {
			break
		}
		if g.Limit == nil {
			// Unlimited grant absorbs everything left; no overage follows.
			amount := priceSlice(g, remaining)
			allocations = append(allocations, Allocation{GrantID: g.GrantID, Quantity: remaining, Amount: amount})
			subtotal = subtotal.Add(amount)
			remaining = decimal.Zero
			break
		}

		limit := decimal.NewFromInt(*g.Limit)
		take := remaining
		if take.GreaterThan(limit) {
			take = limit
		}
		if take.Sign() <= 0 {
			continue
		}

		amount := priceSlice(g, take)
		allocations = append(allocations, Allocation{GrantID: g.GrantID, Quantity: take, Amount: amount})
		subtotal = subtotal.Add(amount)
		remaining = remaining.Sub(take)
	}

	charge := Charge{Allocations: allocations, Subtotal: subtotal}

	if remaining.Sign() > 0 && formula != nil {
		overageAmount := formula.RangeCost(formulaOffset, formulaOffset.Add(remaining))
		charge.Allocations = append(charge.Allocations, Allocation{
			Quantity:  remaining,
			Amount:    overageAmount,
			IsOverage: true,
		})
		charge.Subtotal = charge.Subtotal.Add(overageAmount)
	}

	return charge
}
