package invoice

import (
	"context"
)

// LineItemRepository defines the interface for invoice item persistence operations
type LineItemRepository interface {
	// Create creates a new invoice item
	Create(ctx context.Context, item *InvoiceItem) (*InvoiceItem, error)

	// CreateMany creates multiple invoice items in a single transaction
	CreateMany(ctx context.Context, items []*InvoiceItem) ([]*InvoiceItem, error)

	// Get retrieves an invoice item by ID
	Get(ctx context.Context, id string) (*InvoiceItem, error)

	// GetByInvoiceID retrieves all items for an invoice
	GetByInvoiceID(ctx context.Context, invoiceID string) ([]*InvoiceItem, error)

	// Update updates an invoice item
	Update(ctx context.Context, item *InvoiceItem) (*InvoiceItem, error)

	// Delete soft deletes an invoice item
	Delete(ctx context.Context, id string) error

	// UpdateAmounts persists recomputed quantity/unitAmount/subtotal/total
	// for a batch of items in one UPDATE (CASE-per-id), for the finalizer's
	// repricing pass.
	UpdateAmounts(ctx context.Context, items []*InvoiceItem) error
}
