package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type billingPeriodRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBillingPeriodRepository(db *postgres.DB, logger *logger.Logger) subscription.BillingPeriodRepository {
	return &billingPeriodRepository{db: db, logger: logger}
}

func (r *billingPeriodRepository) Create(ctx context.Context, bp *subscription.BillingPeriod) error {
	query := `
		INSERT INTO billing_periods (
			id, project_id, subscription_id, subscription_phase_id, subscription_item_id, grant_id,
			cycle_start_at, cycle_end_at, status, type, invoice_id, when_to_bill, invoice_at,
			statement_key, amount_estimate_cents, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :project_id, :subscription_id, :subscription_phase_id, :subscription_item_id, :grant_id,
			:cycle_start_at, :cycle_end_at, :status, :type, :invoice_id, :when_to_bill, :invoice_at,
			:statement_key, :amount_estimate_cents, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, bp)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create billing period").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *billingPeriodRepository) Get(ctx context.Context, id string) (*subscription.BillingPeriod, error) {
	var bp subscription.BillingPeriod
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM billing_periods WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get billing period").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("billing period not found").
			WithReportableDetails(map[string]any{"billing_period_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&bp); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan billing period").Mark(ierr.ErrDependencyMissing)
	}
	return &bp, nil
}

func (r *billingPeriodRepository) GetByUniqueKey(ctx context.Context, subscriptionID, phaseID, itemID string, cycleStartAt, cycleEndAt int64) (*subscription.BillingPeriod, error) {
	query := `
		SELECT * FROM billing_periods
		WHERE subscription_id = :subscription_id
			AND subscription_phase_id = :phase_id
			AND subscription_item_id = :item_id
			AND cycle_start_at = to_timestamp(:cycle_start_at)
			AND cycle_end_at = to_timestamp(:cycle_end_at)`

	var bp subscription.BillingPeriod
	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"phase_id":        phaseID,
		"item_id":         itemID,
		"cycle_start_at":  cycleStartAt,
		"cycle_end_at":    cycleEndAt,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get billing period by unique key").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("billing period not found").Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&bp); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan billing period").Mark(ierr.ErrDependencyMissing)
	}
	return &bp, nil
}

func (r *billingPeriodRepository) ListDue(ctx context.Context, subscriptionID string, asOf int64) ([]*subscription.BillingPeriod, error) {
	query := `
		SELECT * FROM billing_periods
		WHERE subscription_id = :subscription_id
			AND status = 'pending'
			AND invoice_at <= :as_of
		ORDER BY invoice_at`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"subscription_id": subscriptionID,
		"as_of":           asOf,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list due billing periods").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var periods []*subscription.BillingPeriod
	for rows.Next() {
		var bp subscription.BillingPeriod
		if err := rows.StructScan(&bp); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan billing period").Mark(ierr.ErrDependencyMissing)
		}
		periods = append(periods, &bp)
	}
	return periods, nil
}

func (r *billingPeriodRepository) ListDueSubscriptionIDs(ctx context.Context, asOf int64, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT subscription_id FROM billing_periods
		WHERE status = 'pending' AND invoice_at <= :as_of
		LIMIT :limit`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"as_of": asOf, "limit": limit})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list subscriptions due for invoicing").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan subscription id").Mark(ierr.ErrDependencyMissing)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *billingPeriodRepository) AttachToInvoice(ctx context.Context, periodIDs []string, invoiceID string) error {
	if len(periodIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(periodIDs))
	args := make(map[string]interface{}, len(periodIDs)+1)
	args["invoice_id"] = invoiceID
	for i, id := range periodIDs {
		key := "id" + strconv.Itoa(i)
		placeholders[i] = ":" + key
		args[key] = id
	}

	query := `
		UPDATE billing_periods SET status = 'invoiced', invoice_id = :invoice_id
		WHERE id IN (` + strings.Join(placeholders, ", ") + `)`

	_, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to attach billing periods to invoice").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}
