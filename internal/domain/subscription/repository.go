package subscription

import "context"

type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, subscription *Subscription) error
	Delete(ctx context.Context, id string) error

	// ListActive returns non-terminal subscriptions for a scheduler sweep.
	ListActive(ctx context.Context, projectID string) ([]*Subscription, error)

	// ListByStatus supports the scheduler's per-status sweeps (e.g. past_due
	// subscriptions for the dunning loop).
	ListByStatus(ctx context.Context, projectID string, status string) ([]*Subscription, error)
}
