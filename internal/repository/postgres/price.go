package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/price"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type priceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPriceRepository(db *postgres.DB, logger *logger.Logger) price.Repository {
	return &priceRepository{db: db, logger: logger}
}

func (r *priceRepository) Create(ctx context.Context, p *price.Price) error {
	query := `
		INSERT INTO prices (
			id, feature_plan_version_id, amount, currency, billing_model, tier_mode, tiers,
			transform, description, metadata, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :feature_plan_version_id, :amount, :currency, :billing_model, :tier_mode, :tiers,
			:transform, :description, :metadata, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create price").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *priceRepository) Get(ctx context.Context, id string) (*price.Price, error) {
	var p price.Price
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM prices WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get price").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("price not found").
			WithReportableDetails(map[string]any{"price_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan price").Mark(ierr.ErrDependencyMissing)
	}
	return &p, nil
}

func (r *priceRepository) GetByFeaturePlanVersionID(ctx context.Context, featurePlanVersionID string) (*price.Price, error) {
	var p price.Price
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM prices WHERE feature_plan_version_id = :feature_plan_version_id", map[string]interface{}{
		"feature_plan_version_id": featurePlanVersionID,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get price by feature plan version").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("price not found").
			WithReportableDetails(map[string]any{"feature_plan_version_id": featurePlanVersionID}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan price").Mark(ierr.ErrDependencyMissing)
	}
	return &p, nil
}

func (r *priceRepository) Update(ctx context.Context, p *price.Price) error {
	query := `
		UPDATE prices SET
			amount = :amount,
			currency = :currency,
			billing_model = :billing_model,
			tier_mode = :tier_mode,
			tiers = :tiers,
			transform = :transform,
			description = :description,
			metadata = :metadata,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update price").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *priceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NamedExecContext(ctx, "UPDATE prices SET status = 'deleted' WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to delete price").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}
