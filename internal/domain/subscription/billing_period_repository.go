package subscription

import (
	"context"
)

// BillingPeriodRepository defines the interface for billing period persistence.
type BillingPeriodRepository interface {
	Create(ctx context.Context, bp *BillingPeriod) error
	Get(ctx context.Context, id string) (*BillingPeriod, error)

	// GetByUniqueKey looks up the period already materialized for
	// (subscription, phase, item, cycleStartAt, cycleEndAt), for the
	// PeriodMaterializer's idempotent insert check.
	GetByUniqueKey(ctx context.Context, subscriptionID, phaseID, itemID string, cycleStartAt, cycleEndAt int64) (*BillingPeriod, error)

	// ListDue returns pending periods whose invoiceAt has passed, for the
	// InvoiceAssembler.
	ListDue(ctx context.Context, subscriptionID string, asOf int64) ([]*BillingPeriod, error)

	// ListDueSubscriptionIDs returns the distinct subscription ids owning a
	// pending period with invoiceAt <= asOf, for the invoicing scheduler
	// sweep (spec.md §4.11), capped at limit distinct ids.
	ListDueSubscriptionIDs(ctx context.Context, asOf int64, limit int) ([]string, error)

	AttachToInvoice(ctx context.Context, periodIDs []string, invoiceID string) error
}
