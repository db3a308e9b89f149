package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type phaseRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPhaseRepository(db *postgres.DB, logger *logger.Logger) subscription.PhaseRepository {
	return &phaseRepository{db: db, logger: logger}
}

func (r *phaseRepository) Create(ctx context.Context, p *subscription.SubscriptionPhase) error {
	query := `
		INSERT INTO subscription_phases (
			id, subscription_id, plan_version_id, payment_method_id, trial_ends_at,
			start_at, end_at, current_cycle_start_at, current_cycle_end_at, renew_at,
			billing_anchor, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :subscription_id, :plan_version_id, :payment_method_id, :trial_ends_at,
			:start_at, :end_at, :current_cycle_start_at, :current_cycle_end_at, :renew_at,
			:billing_anchor, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create subscription phase").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *phaseRepository) Get(ctx context.Context, id string) (*subscription.SubscriptionPhase, error) {
	var p subscription.SubscriptionPhase
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM subscription_phases WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get subscription phase").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("subscription phase not found").
			WithReportableDetails(map[string]any{"phase_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan subscription phase").Mark(ierr.ErrDependencyMissing)
	}
	return &p, nil
}

func (r *phaseRepository) Update(ctx context.Context, p *subscription.SubscriptionPhase) error {
	query := `
		UPDATE subscription_phases SET
			end_at = :end_at,
			renew_at = :renew_at,
			current_cycle_start_at = :current_cycle_start_at,
			current_cycle_end_at = :current_cycle_end_at,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update subscription phase").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *phaseRepository) GetActive(ctx context.Context, subscriptionID string, t int64) (*subscription.SubscriptionPhase, error) {
	query := `
		SELECT * FROM subscription_phases
		WHERE subscription_id = :subscription_id
			AND start_at <= to_timestamp(:t)
			AND (end_at IS NULL OR end_at > to_timestamp(:t))
		ORDER BY start_at DESC
		LIMIT 1`

	var p subscription.SubscriptionPhase
	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"t":               t,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get active subscription phase").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("no active subscription phase").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan subscription phase").Mark(ierr.ErrDependencyMissing)
	}
	return &p, nil
}

func (r *phaseRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*subscription.SubscriptionPhase, error) {
	query := `SELECT * FROM subscription_phases WHERE subscription_id = :subscription_id ORDER BY start_at`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"subscription_id": subscriptionID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list subscription phases").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var phases []*subscription.SubscriptionPhase
	for rows.Next() {
		var p subscription.SubscriptionPhase
		if err := rows.StructScan(&p); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan subscription phase").Mark(ierr.ErrDependencyMissing)
		}
		phases = append(phases, &p)
	}
	return phases, nil
}

func (r *phaseRepository) ListDueForMaterialization(ctx context.Context, asOf int64, limit int) ([]*subscription.SubscriptionPhase, error) {
	query := `
		SELECT sp.* FROM subscription_phases sp
		JOIN subscriptions s ON s.id = sp.subscription_id
		WHERE s.status NOT IN ('canceled', 'expired')
			AND sp.start_at <= to_timestamp(:as_of)
			AND (sp.end_at IS NULL OR sp.end_at >= to_timestamp(:as_of) - interval '7 days')
		ORDER BY sp.current_cycle_end_at
		LIMIT :limit`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"as_of": asOf, "limit": limit})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list phases due for materialization").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var phases []*subscription.SubscriptionPhase
	for rows.Next() {
		var p subscription.SubscriptionPhase
		if err := rows.StructScan(&p); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan subscription phase").Mark(ierr.ErrDependencyMissing)
		}
		phases = append(phases, &p)
	}
	return phases, nil
}

func (r *phaseRepository) ListDueForRenewal(ctx context.Context, asOf int64, limit int) ([]*subscription.SubscriptionPhase, error) {
	query := `
		SELECT sp.* FROM subscription_phases sp
		JOIN subscriptions s ON s.id = sp.subscription_id
		WHERE s.status NOT IN ('canceled', 'expired')
			AND sp.renew_at IS NOT NULL
			AND sp.renew_at <= to_timestamp(:as_of)
		ORDER BY sp.renew_at
		LIMIT :limit`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"as_of": asOf, "limit": limit})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list phases due for renewal").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var phases []*subscription.SubscriptionPhase
	for rows.Next() {
		var p subscription.SubscriptionPhase
		if err := rows.StructScan(&p); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan subscription phase").Mark(ierr.ErrDependencyMissing)
		}
		phases = append(phases, &p)
	}
	return phases, nil
}
