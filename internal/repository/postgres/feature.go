package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/usagebilling/core/internal/domain/feature"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type featureRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewFeatureRepository(db *postgres.DB, logger *logger.Logger) feature.Repository {
	return &featureRepository{db: db, logger: logger}
}

func (r *featureRepository) Create(ctx context.Context, f *feature.Feature) error {
	query := `
		INSERT INTO features (
			id, project_id, name, slug, description, meter_id, metadata, type,
			unit_singular, unit_plural, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :project_id, :name, :slug, :description, :meter_id, :metadata, :type,
			:unit_singular, :unit_plural, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, f)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create feature").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *featureRepository) Get(ctx context.Context, id string) (*feature.Feature, error) {
	var f feature.Feature
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM features WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get feature").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("feature not found").
			WithReportableDetails(map[string]any{"feature_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&f); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan feature").Mark(ierr.ErrDependencyMissing)
	}
	return &f, nil
}

func (r *featureRepository) GetBySlug(ctx context.Context, projectID, slug string) (*feature.Feature, error) {
	var f feature.Feature
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM features WHERE project_id = :project_id AND slug = :slug", map[string]interface{}{
		"project_id": projectID,
		"slug":       slug,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get feature by slug").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("feature not found").
			WithReportableDetails(map[string]any{"project_id": projectID, "slug": slug}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&f); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan feature").Mark(ierr.ErrDependencyMissing)
	}
	return &f, nil
}

func (r *featureRepository) ListByIDs(ctx context.Context, featureIDs []string) ([]*feature.Feature, error) {
	if len(featureIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(featureIDs))
	args := make(map[string]interface{}, len(featureIDs))
	for i, id := range featureIDs {
		key := "id" + strconv.Itoa(i)
		placeholders[i] = ":" + key
		args[key] = id
	}

	query := "SELECT * FROM features WHERE id IN (" + strings.Join(placeholders, ", ") + ")"
	rows, err := r.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list features by ids").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var features []*feature.Feature
	for rows.Next() {
		var f feature.Feature
		if err := rows.StructScan(&f); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan feature").Mark(ierr.ErrDependencyMissing)
		}
		features = append(features, &f)
	}
	return features, nil
}

func (r *featureRepository) Update(ctx context.Context, f *feature.Feature) error {
	query := `
		UPDATE features SET
			name = :name,
			description = :description,
			metadata = :metadata,
			unit_singular = :unit_singular,
			unit_plural = :unit_plural,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, f)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update feature").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *featureRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NamedExecContext(ctx, "UPDATE features SET status = 'deleted' WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to delete feature").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}
