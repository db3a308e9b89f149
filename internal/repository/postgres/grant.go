package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type grantRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewGrantRepository(db *postgres.DB, logger *logger.Logger) subscription.GrantRepository {
	return &grantRepository{db: db, logger: logger}
}

func (r *grantRepository) Create(ctx context.Context, g *subscription.Grant) error {
	query := `
		INSERT INTO grants (
			id, subject_type, subject_id, feature_plan_version_id, type, priority,
			effective_at, expires_at, limit_value, hard_limit, units, deleted,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :subject_type, :subject_id, :feature_plan_version_id, :type, :priority,
			:effective_at, :expires_at, :limit_value, :hard_limit, :units, :deleted,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, g)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create grant").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *grantRepository) Get(ctx context.Context, id string) (*subscription.Grant, error) {
	var g subscription.Grant
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM grants WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get grant").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("grant not found").
			WithReportableDetails(map[string]any{"grant_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&g); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan grant").Mark(ierr.ErrDependencyMissing)
	}
	return &g, nil
}

func (r *grantRepository) ListActiveForFeature(ctx context.Context, subjectType, subjectID, featurePlanVersionID string) ([]*subscription.Grant, error) {
	query := `
		SELECT * FROM grants
		WHERE subject_type = :subject_type
			AND subject_id = :subject_id
			AND feature_plan_version_id = :feature_plan_version_id
			AND deleted = false
		ORDER BY priority`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"subject_type":            subjectType,
		"subject_id":              subjectID,
		"feature_plan_version_id": featurePlanVersionID,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list active grants for feature").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var grants []*subscription.Grant
	for rows.Next() {
		var g subscription.Grant
		if err := rows.StructScan(&g); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan grant").Mark(ierr.ErrDependencyMissing)
		}
		grants = append(grants, &g)
	}
	return grants, nil
}

func (r *grantRepository) ListBySubject(ctx context.Context, subjectType, subjectID string) ([]*subscription.Grant, error) {
	query := `
		SELECT * FROM grants
		WHERE subject_type = :subject_type AND subject_id = :subject_id
		ORDER BY priority`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"subject_type": subjectType,
		"subject_id":   subjectID,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list grants by subject").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var grants []*subscription.Grant
	for rows.Next() {
		var g subscription.Grant
		if err := rows.StructScan(&g); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan grant").Mark(ierr.ErrDependencyMissing)
		}
		grants = append(grants, &g)
	}
	return grants, nil
}

// Supersede inserts replacement and marks oldGrantID deleted in one
// transaction, so a reader never observes both versions active at once.
func (r *grantRepository) Supersede(ctx context.Context, oldGrantID string, replacement *subscription.Grant) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if err := r.Create(ctx, replacement); err != nil {
			return err
		}
		_, err := r.db.NamedExecContext(ctx, "UPDATE grants SET deleted = true WHERE id = :id", map[string]interface{}{"id": oldGrantID})
		if err != nil {
			return ierr.WithError(err).WithMessage("failed to mark superseded grant deleted").Mark(ierr.ErrDependencyMissing)
		}
		return nil
	})
}

func (r *grantRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NamedExecContext(ctx, "UPDATE grants SET deleted = true WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to delete grant").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}
