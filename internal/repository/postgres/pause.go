package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type pauseRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPauseRepository(db *postgres.DB, logger *logger.Logger) subscription.PauseRepository {
	return &pauseRepository{db: db, logger: logger}
}

func (r *pauseRepository) Create(ctx context.Context, p *subscription.SubscriptionPause) error {
	query := `
		INSERT INTO subscription_pauses (
			id, subscription_id, pause_status, pause_mode, resume_mode,
			pause_start, pause_end, resumed_at, original_cycle_start_at, original_cycle_end_at,
			reason, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :subscription_id, :pause_status, :pause_mode, :resume_mode,
			:pause_start, :pause_end, :resumed_at, :original_cycle_start_at, :original_cycle_end_at,
			:reason, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create subscription pause").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *pauseRepository) Update(ctx context.Context, p *subscription.SubscriptionPause) error {
	query := `
		UPDATE subscription_pauses SET
			pause_status = :pause_status,
			resume_mode = :resume_mode,
			pause_end = :pause_end,
			resumed_at = :resumed_at,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update subscription pause").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *pauseRepository) GetActive(ctx context.Context, subscriptionID string) (*subscription.SubscriptionPause, error) {
	query := `
		SELECT * FROM subscription_pauses
		WHERE subscription_id = :subscription_id AND pause_status = 'active'
		ORDER BY pause_start DESC
		LIMIT 1`

	var p subscription.SubscriptionPause
	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"subscription_id": subscriptionID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get active subscription pause").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("no active subscription pause").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan subscription pause").Mark(ierr.ErrDependencyMissing)
	}
	return &p, nil
}
