package postgres

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/domain/subscriptionlock"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type subscriptionLockRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionLockRepository(db *postgres.DB, logger *logger.Logger) subscriptionlock.Repository {
	return &subscriptionLockRepository{db: db, logger: logger}
}

// TryAcquire relies on Postgres skipping the ON CONFLICT DO UPDATE entirely
// when its WHERE clause is false, so RETURNING yields no row for a contested
// lock — no separate read-then-write race window.
func (r *subscriptionLockRepository) TryAcquire(ctx context.Context, projectID, subscriptionID, ownerToken string, now, expiresAt time.Time) (bool, error) {
	query := `
		INSERT INTO subscription_locks (project_id, subscription_id, owner_token, expires_at)
		VALUES (:project_id, :subscription_id, :owner_token, :expires_at)
		ON CONFLICT (project_id, subscription_id) DO UPDATE
			SET owner_token = :owner_token, expires_at = :expires_at
			WHERE subscription_locks.expires_at <= :now
		RETURNING owner_token`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"project_id":      projectID,
		"subscription_id": subscriptionID,
		"owner_token":     ownerToken,
		"expires_at":      expiresAt,
		"now":             now,
	})
	if err != nil {
		return false, ierr.WithError(err).WithMessage("failed to acquire subscription lock").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	return rows.Next(), nil
}

func (r *subscriptionLockRepository) TryExtend(ctx context.Context, projectID, subscriptionID, ownerToken string, now, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE subscription_locks SET expires_at = :expires_at
		WHERE project_id = :project_id
			AND subscription_id = :subscription_id
			AND owner_token = :owner_token
			AND expires_at > :now`

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"project_id":      projectID,
		"subscription_id": subscriptionID,
		"owner_token":     ownerToken,
		"expires_at":      expiresAt,
		"now":             now,
	})
	if err != nil {
		return false, ierr.WithError(err).WithMessage("failed to extend subscription lock").Mark(ierr.ErrDependencyMissing)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, ierr.WithError(err).WithMessage("failed to read rows affected extending subscription lock").Mark(ierr.ErrDependencyMissing)
	}
	return affected > 0, nil
}

func (r *subscriptionLockRepository) Release(ctx context.Context, projectID, subscriptionID string) error {
	query := `DELETE FROM subscription_locks WHERE project_id = :project_id AND subscription_id = :subscription_id`
	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"project_id":      projectID,
		"subscription_id": subscriptionID,
	})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to release subscription lock").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *subscriptionLockRepository) Get(ctx context.Context, projectID, subscriptionID string) (*subscriptionlock.Lock, error) {
	var lock subscriptionlock.Lock
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM subscription_locks WHERE project_id = :project_id AND subscription_id = :subscription_id", map[string]interface{}{
		"project_id":      projectID,
		"subscription_id": subscriptionID,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get subscription lock").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("subscription lock not found").
			WithReportableDetails(map[string]any{"project_id": projectID, "subscription_id": subscriptionID}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&lock); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan subscription lock").Mark(ierr.ErrDependencyMissing)
	}
	return &lock, nil
}
