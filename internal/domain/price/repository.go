package price

import "context"

// Repository defines the interface for price persistence operations.
type Repository interface {
	Create(ctx context.Context, price *Price) error
	Get(ctx context.Context, id string) (*Price, error)
	GetByFeaturePlanVersionID(ctx context.Context, featurePlanVersionID string) (*Price, error)
	Update(ctx context.Context, price *Price) error
	Delete(ctx context.Context, id string) error
}
