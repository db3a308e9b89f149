package creditgrant

import (
	"context"
)

// Repository defines the interface for credit grant persistence.
type Repository interface {
	Create(ctx context.Context, creditGrant *CreditGrant) (*CreditGrant, error)
	Get(ctx context.Context, id string) (*CreditGrant, error)
	Update(ctx context.Context, creditGrant *CreditGrant) (*CreditGrant, error)

	// ListActiveForApplication returns active grants for a (customer,
	// currency, paymentProvider), ordered FIFO by earliest ExpiresAt, for
	// the finalizer's credit-application waterfall.
	ListActiveForApplication(ctx context.Context, customerID, currency, paymentProvider string) ([]*CreditGrant, error)

	ListByCustomer(ctx context.Context, customerID string) ([]*CreditGrant, error)
}
