package invoice

import (
	"context"
)

// Repository defines the interface for invoice persistence operations.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error

	// GetByStatementKey finds the draft invoice that billing periods sharing
	// this statementKey should be co-billed onto, if one already exists.
	GetByStatementKey(ctx context.Context, projectID, statementKey string) (*Invoice, error)

	ListBySubscription(ctx context.Context, subscriptionID string) ([]*Invoice, error)
	ListByCustomer(ctx context.Context, projectID, customerID string) ([]*Invoice, error)

	// ListDueForCollection returns invoices in {unpaid, waiting} whose
	// dueAt has passed (unpaid) or that are simply waiting on the
	// provider (no dueAt gate), for PaymentCollector to drive to a
	// terminal state.
	ListDueForCollection(ctx context.Context, asOf int64) ([]*Invoice, error)

	// ListPastDue returns unpaid invoices whose pastDueAt has passed, for
	// the dunning/suspension scheduler.
	ListPastDue(ctx context.Context, asOf int64) ([]*Invoice, error)

	// ListForFinalization returns draft invoices plus unpaid invoices still
	// missing a provider id, for InvoiceFinalizer to price and sync.
	ListForFinalization(ctx context.Context, asOf int64) ([]*Invoice, error)

	// Edge-specific operations
	CreateWithItems(ctx context.Context, inv *Invoice, items []*InvoiceItem) error
	AddItems(ctx context.Context, invoiceID string, items []*InvoiceItem) error

	AppendPaymentAttempt(ctx context.Context, invoiceID string, attempt PaymentAttempt) error
}
