package creditgrantapplication

import (
	"context"
)

// Repository defines the interface for credit grant application persistence.
type Repository interface {
	Create(ctx context.Context, application *CreditGrantApplication) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]*CreditGrantApplication, error)
	ListByCreditGrant(ctx context.Context, creditGrantID string) ([]*CreditGrantApplication, error)
}
