package subscriptionlock

import (
	"context"
	"time"
)

// Repository is the atomic persistence contract Lock needs: every method
// here must be a single conditional statement (upsert/update-where) so two
// concurrent callers racing on the same (projectID, subscriptionID) can
// never both believe they hold the lock.
type Repository interface {
	// TryAcquire inserts a fresh row for (projectID, subscriptionID) owned by
	// ownerToken, or takes over an existing row whose ExpiresAt is already
	// <= now. Returns false without error if a live, differently-owned row
	// exists.
	TryAcquire(ctx context.Context, projectID, subscriptionID, ownerToken string, now, expiresAt time.Time) (bool, error)

	// TryExtend updates ExpiresAt only when ownerToken currently holds the
	// row and it has not expired as of now.
	TryExtend(ctx context.Context, projectID, subscriptionID, ownerToken string, now, expiresAt time.Time) (bool, error)

	// Release deletes the row unconditionally.
	Release(ctx context.Context, projectID, subscriptionID string) error

	Get(ctx context.Context, projectID, subscriptionID string) (*Lock, error)
}
