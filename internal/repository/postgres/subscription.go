package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, project_id, customer_id, status, active, plan_slug,
			current_cycle_start_at, current_cycle_end_at, timezone, auto_renew, version,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :project_id, :customer_id, :status, :active, :plan_slug,
			:current_cycle_start_at, :current_cycle_end_at, :timezone, :auto_renew, :version,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating subscription", "subscription_id", s.ID)

	_, err := r.db.NamedExecContext(ctx, query, s)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create subscription").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	var s subscription.Subscription
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM subscriptions WHERE id = :id", map[string]interface{}{
		"id": id,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get subscription").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("subscription not found").
			WithReportableDetails(map[string]any{"subscription_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&s); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan subscription").Mark(ierr.ErrDependencyMissing)
	}
	return &s, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	query := `
		UPDATE subscriptions SET
			status = :status,
			active = :active,
			current_cycle_start_at = :current_cycle_start_at,
			current_cycle_end_at = :current_cycle_end_at,
			auto_renew = :auto_renew,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND version = :version`

	result, err := r.db.NamedExecContext(ctx, query, s)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update subscription").Mark(ierr.ErrDependencyMissing)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to read rows affected").Mark(ierr.ErrDependencyMissing)
	}
	if rows == 0 {
		return ierr.NewError("subscription version conflict").
			WithReportableDetails(map[string]any{"subscription_id": s.ID, "version": s.Version}).
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE subscriptions SET status = 'deleted', updated_at = now() WHERE id = :id`
	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to delete subscription").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *subscriptionRepository) ListActive(ctx context.Context, projectID string) ([]*subscription.Subscription, error) {
	query := `
		SELECT * FROM subscriptions
		WHERE project_id = :project_id AND status NOT IN ('canceled', 'expired')
		ORDER BY created_at`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"project_id": projectID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list active subscriptions").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		var s subscription.Subscription
		if err := rows.StructScan(&s); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan subscription").Mark(ierr.ErrDependencyMissing)
		}
		subs = append(subs, &s)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListByStatus(ctx context.Context, projectID string, status string) ([]*subscription.Subscription, error) {
	query := `SELECT * FROM subscriptions WHERE project_id = :project_id AND status = :status ORDER BY created_at`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"project_id": projectID,
		"status":     status,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list subscriptions by status").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var subs []*subscription.Subscription
	for rows.Next() {
		var s subscription.Subscription
		if err := rows.StructScan(&s); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan subscription").Mark(ierr.ErrDependencyMissing)
		}
		subs = append(subs, &s)
	}
	return subs, nil
}
