package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/creditgrantapplication"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type creditGrantApplicationRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCreditGrantApplicationRepository(db *postgres.DB, logger *logger.Logger) creditgrantapplication.Repository {
	return &creditGrantApplicationRepository{db: db, logger: logger}
}

func (r *creditGrantApplicationRepository) Create(ctx context.Context, a *creditgrantapplication.CreditGrantApplication) error {
	query := `
		INSERT INTO credit_grant_applications (
			id, invoice_id, credit_grant_id, amount_applied, status,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :invoice_id, :credit_grant_id, :amount_applied, :status,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, a)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create credit grant application").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *creditGrantApplicationRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*creditgrantapplication.CreditGrantApplication, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM credit_grant_applications WHERE invoice_id = :invoice_id", map[string]interface{}{"invoice_id": invoiceID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list credit grant applications by invoice").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var apps []*creditgrantapplication.CreditGrantApplication
	for rows.Next() {
		var a creditgrantapplication.CreditGrantApplication
		if err := rows.StructScan(&a); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan credit grant application").Mark(ierr.ErrDependencyMissing)
		}
		apps = append(apps, &a)
	}
	return apps, nil
}

func (r *creditGrantApplicationRepository) ListByCreditGrant(ctx context.Context, creditGrantID string) ([]*creditgrantapplication.CreditGrantApplication, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM credit_grant_applications WHERE credit_grant_id = :credit_grant_id", map[string]interface{}{"credit_grant_id": creditGrantID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list credit grant applications by grant").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var apps []*creditgrantapplication.CreditGrantApplication
	for rows.Next() {
		var a creditgrantapplication.CreditGrantApplication
		if err := rows.StructScan(&a); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan credit grant application").Mark(ierr.ErrDependencyMissing)
		}
		apps = append(apps, &a)
	}
	return apps, nil
}
