package postgres

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/domain/customer"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
	"github.com/usagebilling/core/internal/types"
)

type customerRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCustomerRepository(db *postgres.DB, logger *logger.Logger) customer.Repository {
	return &customerRepository{db: db, logger: logger}
}

func (r *customerRepository) Create(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (
			id, external_id, name, email, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :external_id, :name, :email, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating customer", "customer_id", c.ID)

	_, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create customer").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM customers WHERE id = :id", map[string]interface{}{
		"id": id,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get customer").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"customer_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&c); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan customer").Mark(ierr.ErrDependencyMissing)
	}
	return &c, nil
}

func (r *customerRepository) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	var c customer.Customer
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM customers WHERE external_id = :external_id", map[string]interface{}{
		"external_id": externalID,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get customer by external id").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"external_id": externalID}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&c); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan customer").Mark(ierr.ErrDependencyMissing)
	}
	return &c, nil
}

func (r *customerRepository) Update(ctx context.Context, c *customer.Customer) error {
	query := `
		UPDATE customers SET
			external_id = :external_id,
			name = :name,
			email = :email,
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	r.logger.Debugw("updating customer", "customer_id", c.ID)

	_, err := r.db.NamedExecContext(ctx, query, c)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update customer").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *customerRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE customers SET status = :status, updated_at = :updated_at
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":         id,
		"status":     types.StatusDeleted,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to delete customer").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}
