package entitlement

import "context"

// Repository persists the per-customer entitlement aggregate. Project scope
// is carried on every Entitlement and enforced by the implementation.
type Repository interface {
	Create(ctx context.Context, entitlement *Entitlement) (*Entitlement, error)

	// GetByCustomerFeature fetches the unique (project, customer, featureSlug)
	// row the EntitlementEvaluator reads on every verify/reportUsage call.
	GetByCustomerFeature(ctx context.Context, projectID, customerID, featureSlug string) (*Entitlement, error)

	// GetByID fetches a single entitlement by its primary key, for callers
	// (customers.getUsage) that are handed an entitlementId directly rather
	// than a (customer, featureSlug) pair.
	GetByID(ctx context.Context, id string) (*Entitlement, error)

	ListByCustomer(ctx context.Context, projectID, customerID string) ([]*Entitlement, error)

	// Update persists a recomputed entitlement by ID. It does not check
	// Version: a concurrent writer's row is overwritten, so callers
	// serialize writes to one entitlement themselves.
	Update(ctx context.Context, entitlement *Entitlement) error

	Delete(ctx context.Context, id string) error
}
