package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/creditgrant"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type creditGrantRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCreditGrantRepository(db *postgres.DB, logger *logger.Logger) creditgrant.Repository {
	return &creditGrantRepository{db: db, logger: logger}
}

func (r *creditGrantRepository) Create(ctx context.Context, cg *creditgrant.CreditGrant) (*creditgrant.CreditGrant, error) {
	query := `
		INSERT INTO credit_grants (
			id, customer_id, currency, payment_provider, total_amount, amount_used,
			expires_at, active, reason, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :customer_id, :currency, :payment_provider, :total_amount, :amount_used,
			:expires_at, :active, :reason, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, cg)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to create credit grant").Mark(ierr.ErrDependencyMissing)
	}
	return cg, nil
}

func (r *creditGrantRepository) Get(ctx context.Context, id string) (*creditgrant.CreditGrant, error) {
	var cg creditgrant.CreditGrant
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM credit_grants WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get credit grant").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("credit grant not found").
			WithReportableDetails(map[string]any{"credit_grant_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&cg); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan credit grant").Mark(ierr.ErrDependencyMissing)
	}
	return &cg, nil
}

func (r *creditGrantRepository) Update(ctx context.Context, cg *creditgrant.CreditGrant) (*creditgrant.CreditGrant, error) {
	query := `
		UPDATE credit_grants SET
			amount_used = :amount_used,
			active = :active,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, cg)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to update credit grant").Mark(ierr.ErrDependencyMissing)
	}
	return cg, nil
}

func (r *creditGrantRepository) ListActiveForApplication(ctx context.Context, customerID, currency, paymentProvider string) ([]*creditgrant.CreditGrant, error) {
	query := `
		SELECT * FROM credit_grants
		WHERE customer_id = :customer_id
			AND currency = :currency
			AND payment_provider = :payment_provider
			AND active = true
		ORDER BY expires_at NULLS LAST`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"customer_id":      customerID,
		"currency":         currency,
		"payment_provider": paymentProvider,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list active credit grants").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var grants []*creditgrant.CreditGrant
	for rows.Next() {
		var cg creditgrant.CreditGrant
		if err := rows.StructScan(&cg); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan credit grant").Mark(ierr.ErrDependencyMissing)
		}
		grants = append(grants, &cg)
	}
	return grants, nil
}

func (r *creditGrantRepository) ListByCustomer(ctx context.Context, customerID string) ([]*creditgrant.CreditGrant, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM credit_grants WHERE customer_id = :customer_id ORDER BY created_at DESC", map[string]interface{}{"customer_id": customerID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list credit grants by customer").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var grants []*creditgrant.CreditGrant
	for rows.Next() {
		var cg creditgrant.CreditGrant
		if err := rows.StructScan(&cg); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan credit grant").Mark(ierr.ErrDependencyMissing)
		}
		grants = append(grants, &cg)
	}
	return grants, nil
}
