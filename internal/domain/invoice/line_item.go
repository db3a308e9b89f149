package invoice

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// InvoiceItem is one priced line on an invoice, created by the assembler
// from a billing period (kind=period/trial) or by the finalizer
// (kind=credit_applied, adjustment).
type InvoiceItem struct {
	ID                   string  `db:"id" json:"id"`
	InvoiceID            string  `db:"invoice_id" json:"invoice_id"`
	BillingPeriodID      *string `db:"billing_period_id" json:"billing_period_id,omitempty"`
	SubscriptionItemID   *string `db:"subscription_item_id" json:"subscription_item_id,omitempty"`
	FeaturePlanVersionID *string `db:"feature_plan_version_id" json:"feature_plan_version_id,omitempty"`

	Kind types.InvoiceItemKind `db:"kind" json:"kind"`

	Quantity        decimal.Decimal  `db:"quantity" json:"quantity"`
	UnitAmountCents *decimal.Decimal `db:"unit_amount_cents" json:"unit_amount_cents,omitempty"`
	AmountSubtotal  decimal.Decimal  `db:"amount_subtotal" json:"amount_subtotal"`
	AmountTotal     decimal.Decimal  `db:"amount_total" json:"amount_total"`

	CycleStartAt time.Time `db:"cycle_start_at" json:"cycle_start_at"`
	CycleEndAt   time.Time `db:"cycle_end_at" json:"cycle_end_at"`

	// ProrationFactor is applied as amountTotal = round(amountSubtotal *
	// prorationFactor) for mid-cycle items; nil means 1 (no proration).
	ProrationFactor *decimal.Decimal `db:"proration_factor" json:"proration_factor,omitempty"`

	Description    string  `db:"description" json:"description"`
	ItemProviderID *string `db:"item_provider_id" json:"item_provider_id,omitempty"`

	types.BaseModel
}

func (i *InvoiceItem) Validate() error {
	if i.InvoiceID == "" {
		return ierr.NewError("invoice_id is required").Mark(ierr.ErrValidation)
	}
	if i.Quantity.IsNegative() {
		return ierr.NewError("quantity must be non-negative").Mark(ierr.ErrValidation)
	}
	if i.CycleEndAt.Before(i.CycleStartAt) {
		return ierr.NewError("cycle_end_at must not be before cycle_start_at").Mark(ierr.ErrValidation)
	}
	return nil
}

// ApplyProration sets AmountTotal = round(AmountSubtotal * ProrationFactor).
func (i *InvoiceItem) ApplyProration() {
	if i.ProrationFactor == nil {
		i.AmountTotal = i.AmountSubtotal
		return
	}
	i.AmountTotal = i.AmountSubtotal.Mul(*i.ProrationFactor).Round(0)
}
