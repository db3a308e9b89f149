package subscription

import "context"

// PauseRepository defines the interface for subscription pause persistence.
type PauseRepository interface {
	Create(ctx context.Context, pause *SubscriptionPause) error
	Update(ctx context.Context, pause *SubscriptionPause) error

	// GetActive returns the pause currently in effect for a subscription, if
	// any, for the machine's pausing/resuming guards and PeriodMaterializer's
	// pause check.
	GetActive(ctx context.Context, subscriptionID string) (*SubscriptionPause, error)
}
