package subscription

import (
	"time"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// BillingPeriod is one materialized service window for a subscription item,
// created by the PeriodMaterializer and later attached to an Invoice by the
// InvoiceAssembler. Unique on (project, subscription, phase, item,
// cycleStartAt, cycleEndAt); a period must be materialized before its
// CycleEndAt.
type BillingPeriod struct {
	ID                  string `db:"id" json:"id"`
	ProjectID           string `db:"project_id" json:"project_id"`
	SubscriptionID      string `db:"subscription_id" json:"subscription_id"`
	SubscriptionPhaseID string `db:"subscription_phase_id" json:"subscription_phase_id"`
	SubscriptionItemID  string `db:"subscription_item_id" json:"subscription_item_id"`
	GrantID             string `db:"grant_id" json:"grant_id"`

	CycleStartAt time.Time `db:"cycle_start_at" json:"cycle_start_at"`
	CycleEndAt   time.Time `db:"cycle_end_at" json:"cycle_end_at"`

	Status types.BillingPeriodStatus `db:"status" json:"status"`
	Type   types.BillingPeriodType   `db:"type" json:"type"`

	InvoiceID *string `db:"invoice_id" json:"invoice_id,omitempty"`

	WhenToBill types.WhenToBill `db:"when_to_bill" json:"when_to_bill"`
	InvoiceAt  int64            `db:"invoice_at" json:"invoice_at"`

	StatementKey string `db:"statement_key" json:"statement_key"`

	AmountEstimateCents *int64 `db:"amount_estimate_cents" json:"amount_estimate_cents,omitempty"`

	types.BaseModel
}

func (bp *BillingPeriod) Validate() error {
	if bp.SubscriptionID == "" || bp.SubscriptionPhaseID == "" || bp.SubscriptionItemID == "" {
		return ierr.NewError("subscription_id, subscription_phase_id and subscription_item_id are required").
			Mark(ierr.ErrValidation)
	}
	if !bp.CycleEndAt.After(bp.CycleStartAt) {
		return ierr.NewError("cycle_end_at must be after cycle_start_at").Mark(ierr.ErrValidation)
	}
	if bp.StatementKey == "" {
		return ierr.NewError("statement_key is required").Mark(ierr.ErrValidation)
	}
	return nil
}

// IsDue reports whether this pending period's invoiceAt has passed.
func (bp *BillingPeriod) IsDue(now int64) bool {
	return bp.Status == types.BillingPeriodStatusPending && bp.InvoiceAt <= now
}
