package subscription

import (
	"context"
)

// PhaseRepository defines the interface for subscription phase persistence.
type PhaseRepository interface {
	Create(ctx context.Context, phase *SubscriptionPhase) error
	Get(ctx context.Context, id string) (*SubscriptionPhase, error)
	Update(ctx context.Context, phase *SubscriptionPhase) error

	// GetActive returns the phase whose [StartAt, EndAt) window covers t.
	GetActive(ctx context.Context, subscriptionID string, t int64) (*SubscriptionPhase, error)

	ListBySubscription(ctx context.Context, subscriptionID string) ([]*SubscriptionPhase, error)

	// ListDueForMaterialization returns phases of active subscriptions with
	// startAt <= asOf and (endAt is null or endAt >= asOf - 7 days), for the
	// periods scheduler sweep (spec.md §4.11), capped at limit rows.
	ListDueForMaterialization(ctx context.Context, asOf int64, limit int) ([]*SubscriptionPhase, error)

	// ListDueForRenewal returns phases with renewAt <= asOf belonging to
	// active, non-terminal subscriptions, for the renew scheduler sweep,
	// capped at limit rows.
	ListDueForRenewal(ctx context.Context, asOf int64, limit int) ([]*SubscriptionPhase, error)
}
