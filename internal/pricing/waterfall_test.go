package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/usagebilling/core/internal/domain/price"
	"github.com/usagebilling/core/internal/types"
)

func TestWaterfall_ConsumesHigherPriorityGrantFirst(t *testing.T) {
	subLimit := int64(100)
	manualLimit := int64(50)
	grants := []GrantAllowance{
		{GrantID: "sub", Priority: 10, Limit: &subLimit},
		{GrantID: "manual", Priority: 100, Limit: &manualLimit},
	}
	formula := &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 10}

	charge := Waterfall(decimal.NewFromInt(120), grants, formula)

	// manual (priority 100) is consumed first up to its 50-unit limit, then
	// the subscription grant (priority 10) covers the next 70, leaving no
	// overage. Both grants have no rate override, so both bill against the
	// shared formula, continuing the same cumulative curve.
	assert.Len(t, charge.Allocations, 2)
	assert.Equal(t, "manual", charge.Allocations[0].GrantID)
	assert.True(t, charge.Allocations[0].Quantity.Equal(decimal.NewFromInt(50)))
	assert.True(t, charge.Allocations[0].Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "sub", charge.Allocations[1].GrantID)
	assert.True(t, charge.Allocations[1].Quantity.Equal(decimal.NewFromInt(70)))
	assert.True(t, charge.Allocations[1].Amount.Equal(decimal.NewFromInt(700)))
	assert.True(t, charge.Subtotal.Equal(decimal.NewFromInt(1200)))
}

// TestWaterfall_TwoGrantsWithDistinctRates is spec.md §8 property #9: grants
// {limit=10, unit=$1.00} and {limit=10, unit=$0.50}, usage=15, yields
// $12.50 across two allocations (10 @ $1.00, 5 @ $0.50) with no overage.
func TestWaterfall_TwoGrantsWithDistinctRates(t *testing.T) {
	limitA := int64(10)
	limitB := int64(10)
	grants := []GrantAllowance{
		{GrantID: "a", Priority: 10, Limit: &limitA, Price: &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 100}},
		{GrantID: "b", Priority: 5, Limit: &limitB, Price: &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 50}},
	}

	charge := Waterfall(decimal.NewFromInt(15), grants, nil)

	assert.Len(t, charge.Allocations, 2)
	assert.False(t, charge.Allocations[0].IsOverage)
	assert.True(t, charge.Allocations[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, charge.Allocations[0].Amount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, charge.Allocations[1].Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, charge.Allocations[1].Amount.Equal(decimal.NewFromInt(250)))
	assert.True(t, charge.Subtotal.Equal(decimal.NewFromInt(1250)), "got %s", charge.Subtotal)
}

// TestWaterfall_TwoGrantsWithOverage is spec.md §8 Scenario S4: usage=25
// over grants {limit=10 @ $1.00} and {limit=10 @ $2.00}; total=$40.00
// (10 + 20 + 10 overage priced at the last grant's $2.00 rate).
func TestWaterfall_TwoGrantsWithOverage(t *testing.T) {
	limitA := int64(10)
	limitB := int64(10)
	rateB := &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 200}
	grants := []GrantAllowance{
		{GrantID: "a", Priority: 10, Limit: &limitA, Price: &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 100}},
		{GrantID: "b", Priority: 5, Limit: &limitB, Price: rateB},
	}

	charge := Waterfall(decimal.NewFromInt(25), grants, rateB)

	assert.Len(t, charge.Allocations, 3)
	assert.True(t, charge.Allocations[0].Amount.Equal(decimal.NewFromInt(1000)), "grant a: 10@$1.00")
	assert.True(t, charge.Allocations[1].Amount.Equal(decimal.NewFromInt(2000)), "grant b: 10@$2.00")
	overage := charge.Allocations[2]
	assert.True(t, overage.IsOverage)
	assert.True(t, overage.Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, overage.Amount.Equal(decimal.NewFromInt(1000)), "overage: 5 units @ $2.00")
	assert.True(t, charge.Subtotal.Equal(decimal.NewFromInt(4000)), "total should be $40.00, got %s", charge.Subtotal)
}

func TestWaterfall_RemainderAfterLimitsIsOverage(t *testing.T) {
	limit := int64(100)
	grants := []GrantAllowance{
		{GrantID: "sub", Priority: 10, Limit: &limit},
	}
	formula := &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 10}

	charge := Waterfall(decimal.NewFromInt(130), grants, formula)

	assert.Len(t, charge.Allocations, 2)
	covered := charge.Allocations[0]
	assert.True(t, covered.Amount.Equal(decimal.NewFromInt(1000)), "grant with no override bills against formula too")
	overage := charge.Allocations[1]
	assert.True(t, overage.IsOverage)
	assert.True(t, overage.Quantity.Equal(decimal.NewFromInt(30)))
	assert.True(t, overage.Amount.Equal(decimal.NewFromInt(300)))
	assert.True(t, charge.Subtotal.Equal(decimal.NewFromInt(1300)))
}

func TestWaterfall_UnlimitedGrantBillsAgainstFormula(t *testing.T) {
	grants := []GrantAllowance{
		{GrantID: "unlimited", Priority: 10, Limit: nil},
	}
	formula := &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 10}

	charge := Waterfall(decimal.NewFromInt(1000), grants, formula)

	assert.Len(t, charge.Allocations, 1)
	assert.Equal(t, "unlimited", charge.Allocations[0].GrantID)
	assert.True(t, charge.Allocations[0].Amount.Equal(decimal.NewFromInt(10000)))
	assert.True(t, charge.Subtotal.Equal(decimal.NewFromInt(10000)))
}

func TestWaterfall_UnlimitedGrantWithOwnRate(t *testing.T) {
	grants := []GrantAllowance{
		{GrantID: "promo", Priority: 90, Limit: nil, Price: &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 1}},
	}
	formula := &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 10}

	charge := Waterfall(decimal.NewFromInt(1000), grants, formula)

	// the unlimited promo grant absorbs everything at its own $0.01 rate;
	// the base formula is never touched.
	assert.Len(t, charge.Allocations, 1)
	assert.True(t, charge.Allocations[0].Amount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, charge.Subtotal.Equal(decimal.NewFromInt(1000)))
}

// TestWaterfall_GraduatedTierContinuesAcrossGrantAndOverage is spec.md §8
// property #10: tiers [1..10 @ $1.00, 11..∞ @ $0.50], a single grant with
// limit=5 and no rate override, usage=15 yields total $12.50, items
// (5 @ $5.00, 10 @ $7.50, isOverage=true) — the grant-covered slice and the
// overage slice are two segments of the same cumulative tier curve.
func TestWaterfall_GraduatedTierContinuesAcrossGrantAndOverage(t *testing.T) {
	upTo10 := 10
	limit := int64(5)
	grants := []GrantAllowance{
		{GrantID: "sub", Priority: 10, Limit: &limit},
	}
	formula := &price.Price{
		BillingModel: types.BillingModelTiered,
		Tiers: []price.PriceTier{
			{UpTo: &upTo10, UnitAmount: 100},
			{UpTo: nil, UnitAmount: 50},
		},
	}

	charge := Waterfall(decimal.NewFromInt(15), grants, formula)

	require := assert.New(t)
	require.Len(charge.Allocations, 2)
	covered := charge.Allocations[0]
	require.False(covered.IsOverage)
	require.True(covered.Quantity.Equal(decimal.NewFromInt(5)))
	require.True(covered.Amount.Equal(decimal.NewFromInt(500)), "5 units in tier 1 at $1.00 = $5.00, got %s", covered.Amount)

	overage := charge.Allocations[1]
	require.True(overage.IsOverage)
	require.True(overage.Quantity.Equal(decimal.NewFromInt(10)))
	require.True(overage.Amount.Equal(decimal.NewFromInt(750)), "5 more units in tier 1 + 5 in tier 2 = $7.50, got %s", overage.Amount)

	require.True(charge.Subtotal.Equal(decimal.NewFromInt(1250)), "total should be $12.50, got %s", charge.Subtotal)
}

func TestWaterfall_NoGrantsAllOverage(t *testing.T) {
	formula := &price.Price{BillingModel: types.BillingModelFlatFee, Amount: 10}

	charge := Waterfall(decimal.NewFromInt(10), nil, formula)

	assert.Len(t, charge.Allocations, 1)
	assert.True(t, charge.Allocations[0].IsOverage)
	assert.True(t, charge.Subtotal.Equal(decimal.NewFromInt(100)))
}
