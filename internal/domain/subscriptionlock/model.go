// Package subscriptionlock is the SubscriptionLock entity of spec.md §3/§4.2:
// a persisted lease enforcing at-most-one writer per (project, subscription).
package subscriptionlock

import "time"

// Lock is the single row a (ProjectID, SubscriptionID) pair may hold. There
// is no soft-delete or history here — Release deletes the row outright.
type Lock struct {
	ProjectID      string    `db:"project_id" json:"project_id"`
	SubscriptionID string    `db:"subscription_id" json:"subscription_id"`
	OwnerToken     string    `db:"owner_token" json:"owner_token"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
}
