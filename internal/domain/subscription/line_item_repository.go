package subscription

import (
	"context"
)

// ItemRepository defines the interface for subscription item persistence.
type ItemRepository interface {
	Create(ctx context.Context, item *SubscriptionItem) error
	CreateBulk(ctx context.Context, items []*SubscriptionItem) error
	Get(ctx context.Context, id string) (*SubscriptionItem, error)
	ListByPhase(ctx context.Context, phaseID string) ([]*SubscriptionItem, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*SubscriptionItem, error)
}
