package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/entitlement"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type entitlementRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewEntitlementRepository(db *postgres.DB, logger *logger.Logger) entitlement.Repository {
	return &entitlementRepository{db: db, logger: logger}
}

func (r *entitlementRepository) Create(ctx context.Context, e *entitlement.Entitlement) (*entitlement.Entitlement, error) {
	query := `
		INSERT INTO entitlements (
			id, project_id, customer_id, feature_slug, feature_type, usage_limit, hard_limit,
			reset_config, aggregation_method, timezone, current_cycle_start_at, current_cycle_end_at,
			current_cycle_usage, accumulated_usage, version, grants, meter,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :project_id, :customer_id, :feature_slug, :feature_type, :usage_limit, :hard_limit,
			:reset_config, :aggregation_method, :timezone, :current_cycle_start_at, :current_cycle_end_at,
			:current_cycle_usage, :accumulated_usage, :version, :grants, :meter,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, e)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to create entitlement").Mark(ierr.ErrDependencyMissing)
	}
	return e, nil
}

func (r *entitlementRepository) GetByCustomerFeature(ctx context.Context, projectID, customerID, featureSlug string) (*entitlement.Entitlement, error) {
	var e entitlement.Entitlement
	query := `
		SELECT * FROM entitlements
		WHERE project_id = :project_id AND customer_id = :customer_id AND feature_slug = :feature_slug`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"project_id":   projectID,
		"customer_id":  customerID,
		"feature_slug": featureSlug,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get entitlement").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("entitlement not found").
			WithReportableDetails(map[string]any{"project_id": projectID, "customer_id": customerID, "feature_slug": featureSlug}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&e); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan entitlement").Mark(ierr.ErrDependencyMissing)
	}
	return &e, nil
}

func (r *entitlementRepository) GetByID(ctx context.Context, id string) (*entitlement.Entitlement, error) {
	var e entitlement.Entitlement
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM entitlements WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get entitlement").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("entitlement not found").
			WithReportableDetails(map[string]any{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&e); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan entitlement").Mark(ierr.ErrDependencyMissing)
	}
	return &e, nil
}

func (r *entitlementRepository) ListByCustomer(ctx context.Context, projectID, customerID string) ([]*entitlement.Entitlement, error) {
	query := "SELECT * FROM entitlements WHERE project_id = :project_id AND customer_id = :customer_id"
	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"project_id":  projectID,
		"customer_id": customerID,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list entitlements by customer").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var entitlements []*entitlement.Entitlement
	for rows.Next() {
		var e entitlement.Entitlement
		if err := rows.StructScan(&e); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan entitlement").Mark(ierr.ErrDependencyMissing)
		}
		entitlements = append(entitlements, &e)
	}
	return entitlements, nil
}

// Update persists the entitlement as fetched-and-mutated by the caller.
// Callers serialize writes to a given (customer, feature) through the
// subscription lock rather than a version-gated compare-and-swap here:
// by the time Update runs, Version already holds the new grant-set hash
// computed from the same row Update is about to overwrite.
func (r *entitlementRepository) Update(ctx context.Context, e *entitlement.Entitlement) error {
	query := `
		UPDATE entitlements SET
			usage_limit = :usage_limit,
			hard_limit = :hard_limit,
			reset_config = :reset_config,
			aggregation_method = :aggregation_method,
			timezone = :timezone,
			current_cycle_start_at = :current_cycle_start_at,
			current_cycle_end_at = :current_cycle_end_at,
			current_cycle_usage = :current_cycle_usage,
			accumulated_usage = :accumulated_usage,
			version = :version,
			grants = :grants,
			meter = :meter,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, e)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update entitlement").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *entitlementRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NamedExecContext(ctx, "UPDATE entitlements SET status = 'deleted' WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to delete entitlement").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}
