package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/meter"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type meterRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewMeterRepository(db *postgres.DB, logger *logger.Logger) meter.Repository {
	return &meterRepository{db: db, logger: logger}
}

func (r *meterRepository) CreateMeter(ctx context.Context, m *meter.Meter) error {
	query := `
		INSERT INTO meters (
			id, event_name, name, aggregation, filters, reset_config, project_id,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :event_name, :name, :aggregation, :filters, :reset_config, :project_id,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, m)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create meter").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *meterRepository) GetMeter(ctx context.Context, id string) (*meter.Meter, error) {
	var m meter.Meter
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM meters WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get meter").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("meter not found").
			WithReportableDetails(map[string]any{"meter_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&m); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan meter").Mark(ierr.ErrDependencyMissing)
	}
	return &m, nil
}

func (r *meterRepository) GetAllMeters(ctx context.Context) ([]*meter.Meter, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM meters WHERE status != 'deleted'", map[string]interface{}{})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list meters").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var meters []*meter.Meter
	for rows.Next() {
		var m meter.Meter
		if err := rows.StructScan(&m); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan meter").Mark(ierr.ErrDependencyMissing)
		}
		meters = append(meters, &m)
	}
	return meters, nil
}

func (r *meterRepository) DisableMeter(ctx context.Context, id string) error {
	_, err := r.db.NamedExecContext(ctx, "UPDATE meters SET status = 'archived' WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to disable meter").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *meterRepository) UpdateMeter(ctx context.Context, id string, filters []meter.Filter) error {
	_, err := r.db.NamedExecContext(ctx, "UPDATE meters SET filters = :filters WHERE id = :id", map[string]interface{}{
		"id":      id,
		"filters": meter.FilterList(filters),
	})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update meter filters").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}
