// Package lock implements the acquire/extend/release contract of spec.md
// §4.2 on top of the subscriptionlock.Repository persistence layer.
package lock

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/domain/subscriptionlock"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/types"
)

// DefaultTTL is the lease duration a machine run should hold the lock for
// absent a longer-running invoke; spec.md §5 caps it at 60s and requires
// extending before provider I/O.
const DefaultTTL = 60 * time.Second

// SubscriptionLock is a lease on one (projectID, subscriptionID) pair. Each
// instance mints its own owner token, so a new SubscriptionLock must be
// constructed per machine run rather than reused across attempts.
type SubscriptionLock struct {
	repo           subscriptionlock.Repository
	logger         *logger.Logger
	projectID      string
	subscriptionID string
	ownerToken     string
}

func New(repo subscriptionlock.Repository, log *logger.Logger, projectID, subscriptionID string) *SubscriptionLock {
	return &SubscriptionLock{
		repo:           repo,
		logger:         log,
		projectID:      projectID,
		subscriptionID: subscriptionID,
		ownerToken:     types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LOCK_TOKEN),
	}
}

// OwnerToken is the token this lease will present to the repository; attach
// it to the context via types.WithLeaseToken once Acquire succeeds so every
// write in the machine run is attributable to this holder.
func (l *SubscriptionLock) OwnerToken() string {
	return l.ownerToken
}

// Acquire takes the lock for ttl starting at now. False means another live
// holder has it; the caller must not proceed with a machine run.
func (l *SubscriptionLock) Acquire(ctx context.Context, now time.Time, ttl time.Duration) (bool, error) {
	ok, err := l.repo.TryAcquire(ctx, l.projectID, l.subscriptionID, l.ownerToken, now, now.Add(ttl))
	if err != nil {
		return false, err
	}
	if !ok {
		l.logger.Debugw("subscription lock held by another owner",
			"project_id", l.projectID, "subscription_id", l.subscriptionID)
	}
	return ok, nil
}

// Extend pushes the lease's expiry out by ttl from now, and only succeeds
// while this lease's token still owns the row. Call before any long
// provider I/O so the lock doesn't lapse mid-invoke.
func (l *SubscriptionLock) Extend(ctx context.Context, now time.Time, ttl time.Duration) (bool, error) {
	return l.repo.TryExtend(ctx, l.projectID, l.subscriptionID, l.ownerToken, now, now.Add(ttl))
}

// Release drops the lock unconditionally, per spec.md §4.2.
func (l *SubscriptionLock) Release(ctx context.Context) error {
	return l.repo.Release(ctx, l.projectID, l.subscriptionID)
}
