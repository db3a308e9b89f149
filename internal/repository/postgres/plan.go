package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/plan"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type planRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPlanRepository(db *postgres.DB, logger *logger.Logger) plan.Repository {
	return &planRepository{db: db, logger: logger}
}

func (r *planRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (
			id, project_id, slug, name, description, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :project_id, :slug, :name, :description, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create plan").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *planRepository) Get(ctx context.Context, id string) (*plan.Plan, error) {
	var p plan.Plan
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM plans WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get plan").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("plan not found").
			WithReportableDetails(map[string]any{"plan_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan plan").Mark(ierr.ErrDependencyMissing)
	}
	return &p, nil
}

func (r *planRepository) GetBySlug(ctx context.Context, projectID, slug string) (*plan.Plan, error) {
	var p plan.Plan
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM plans WHERE project_id = :project_id AND slug = :slug", map[string]interface{}{
		"project_id": projectID,
		"slug":       slug,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get plan by slug").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("plan not found").
			WithReportableDetails(map[string]any{"project_id": projectID, "slug": slug}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&p); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan plan").Mark(ierr.ErrDependencyMissing)
	}
	return &p, nil
}

func (r *planRepository) Update(ctx context.Context, p *plan.Plan) error {
	query := `
		UPDATE plans SET name = :name, description = :description, updated_at = :updated_at, updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, p)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update plan").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *planRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NamedExecContext(ctx, "UPDATE plans SET status = 'deleted' WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to delete plan").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

type planVersionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewPlanVersionRepository(db *postgres.DB, logger *logger.Logger) plan.VersionRepository {
	return &planVersionRepository{db: db, logger: logger}
}

func (r *planVersionRepository) Create(ctx context.Context, v *plan.PlanVersion) error {
	query := `
		INSERT INTO plan_versions (
			id, plan_id, version, status, currency, payment_provider, when_to_bill, collection_method,
			interval, interval_count, anchor, trial_period_days, grace_period_days,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :plan_id, :version, :status, :currency, :payment_provider, :when_to_bill, :collection_method,
			:interval, :interval_count, :anchor, :trial_period_days, :grace_period_days,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, v)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create plan version").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *planVersionRepository) Get(ctx context.Context, id string) (*plan.PlanVersion, error) {
	var v plan.PlanVersion
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM plan_versions WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get plan version").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("plan version not found").
			WithReportableDetails(map[string]any{"plan_version_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&v); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan plan version").Mark(ierr.ErrDependencyMissing)
	}
	return &v, nil
}

func (r *planVersionRepository) GetPublished(ctx context.Context, planID string) (*plan.PlanVersion, error) {
	query := `
		SELECT * FROM plan_versions
		WHERE plan_id = :plan_id AND status = 'published'
		ORDER BY version DESC
		LIMIT 1`

	var v plan.PlanVersion
	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"plan_id": planID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get published plan version").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("no published plan version").
			WithReportableDetails(map[string]any{"plan_id": planID}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&v); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan plan version").Mark(ierr.ErrDependencyMissing)
	}
	return &v, nil
}

func (r *planVersionRepository) Update(ctx context.Context, v *plan.PlanVersion) error {
	query := `
		UPDATE plan_versions SET status = :status, updated_at = :updated_at, updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, v)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update plan version").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

type featureVersionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewFeatureVersionRepository(db *postgres.DB, logger *logger.Logger) plan.FeatureVersionRepository {
	return &featureVersionRepository{db: db, logger: logger}
}

func (r *featureVersionRepository) Create(ctx context.Context, fv *plan.FeaturePlanVersion) error {
	query := `
		INSERT INTO feature_plan_versions (
			id, plan_version_id, feature_id, feature_type, aggregation_method,
			limit_value, hard_limit, reset_config, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :plan_version_id, :feature_id, :feature_type, :aggregation_method,
			:limit_value, :hard_limit, :reset_config, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, fv)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create feature plan version").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *featureVersionRepository) Get(ctx context.Context, id string) (*plan.FeaturePlanVersion, error) {
	var fv plan.FeaturePlanVersion
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM feature_plan_versions WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get feature plan version").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("feature plan version not found").
			WithReportableDetails(map[string]any{"feature_plan_version_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&fv); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan feature plan version").Mark(ierr.ErrDependencyMissing)
	}
	return &fv, nil
}

func (r *featureVersionRepository) ListByPlanVersion(ctx context.Context, planVersionID string) ([]*plan.FeaturePlanVersion, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM feature_plan_versions WHERE plan_version_id = :plan_version_id", map[string]interface{}{"plan_version_id": planVersionID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list feature plan versions").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var versions []*plan.FeaturePlanVersion
	for rows.Next() {
		var fv plan.FeaturePlanVersion
		if err := rows.StructScan(&fv); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan feature plan version").Mark(ierr.ErrDependencyMissing)
		}
		versions = append(versions, &fv)
	}
	return versions, nil
}

func (r *featureVersionRepository) GetByPlanVersionAndFeature(ctx context.Context, planVersionID, featureID string) (*plan.FeaturePlanVersion, error) {
	var fv plan.FeaturePlanVersion
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM feature_plan_versions WHERE plan_version_id = :plan_version_id AND feature_id = :feature_id", map[string]interface{}{
		"plan_version_id": planVersionID,
		"feature_id":      featureID,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get feature plan version").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("feature plan version not found").
			WithReportableDetails(map[string]any{"plan_version_id": planVersionID, "feature_id": featureID}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&fv); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan feature plan version").Mark(ierr.ErrDependencyMissing)
	}
	return &fv, nil
}
