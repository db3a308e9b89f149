package proration

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/usagebilling/core/internal/types"
)

// FactorParams is the input to a proration factor calculation for one
// mid-cycle BillingPeriod/InvoiceItem: what fraction of the full cycle
// remains from ProrationDate to CycleEnd.
type FactorParams struct {
	CycleStart       time.Time
	CycleEnd         time.Time
	ProrationDate    time.Time
	CustomerTimezone string
	Strategy         types.ProrationStrategy
}

// Factor is a proration coefficient in [0, 1], applied as
// amountTotal = round(amountSubtotal * Factor).
type Factor = decimal.Decimal
