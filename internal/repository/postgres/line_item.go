package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/usagebilling/core/internal/domain/invoice"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type lineItemRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewLineItemRepository(db *postgres.DB, logger *logger.Logger) invoice.LineItemRepository {
	return &lineItemRepository{db: db, logger: logger}
}

const insertInvoiceItemQuery = `
	INSERT INTO invoice_items (
		id, invoice_id, billing_period_id, subscription_item_id, feature_plan_version_id, kind,
		quantity, unit_amount_cents, amount_subtotal, amount_total, cycle_start_at, cycle_end_at,
		proration_factor, description, item_provider_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :invoice_id, :billing_period_id, :subscription_item_id, :feature_plan_version_id, :kind,
		:quantity, :unit_amount_cents, :amount_subtotal, :amount_total, :cycle_start_at, :cycle_end_at,
		:proration_factor, :description, :item_provider_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

func (r *lineItemRepository) Create(ctx context.Context, item *invoice.InvoiceItem) (*invoice.InvoiceItem, error) {
	_, err := r.db.NamedExecContext(ctx, insertInvoiceItemQuery, item)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to create invoice item").Mark(ierr.ErrDependencyMissing)
	}
	return item, nil
}

func (r *lineItemRepository) CreateMany(ctx context.Context, items []*invoice.InvoiceItem) ([]*invoice.InvoiceItem, error) {
	if len(items) == 0 {
		return items, nil
	}
	err := r.db.WithTx(ctx, func(ctx context.Context) error {
		for _, item := range items {
			if _, err := r.Create(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *lineItemRepository) Get(ctx context.Context, id string) (*invoice.InvoiceItem, error) {
	var item invoice.InvoiceItem
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM invoice_items WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get invoice item").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("invoice item not found").
			WithReportableDetails(map[string]any{"invoice_item_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&item); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan invoice item").Mark(ierr.ErrDependencyMissing)
	}
	return &item, nil
}

func (r *lineItemRepository) GetByInvoiceID(ctx context.Context, invoiceID string) ([]*invoice.InvoiceItem, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM invoice_items WHERE invoice_id = :invoice_id ORDER BY created_at", map[string]interface{}{"invoice_id": invoiceID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list invoice items").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var items []*invoice.InvoiceItem
	for rows.Next() {
		var item invoice.InvoiceItem
		if err := rows.StructScan(&item); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan invoice item").Mark(ierr.ErrDependencyMissing)
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *lineItemRepository) Update(ctx context.Context, item *invoice.InvoiceItem) (*invoice.InvoiceItem, error) {
	query := `
		UPDATE invoice_items SET
			quantity = :quantity,
			unit_amount_cents = :unit_amount_cents,
			amount_subtotal = :amount_subtotal,
			amount_total = :amount_total,
			proration_factor = :proration_factor,
			description = :description,
			item_provider_id = :item_provider_id,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to update invoice item").Mark(ierr.ErrDependencyMissing)
	}
	return item, nil
}

func (r *lineItemRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NamedExecContext(ctx, "UPDATE invoice_items SET status = 'deleted' WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to delete invoice item").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

// UpdateAmounts reprices a batch of items in a single UPDATE ... CASE
// statement, for the finalizer's repricing pass.
func (r *lineItemRepository) UpdateAmounts(ctx context.Context, items []*invoice.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	quantityCase := strings.Builder{}
	subtotalCase := strings.Builder{}
	totalCase := strings.Builder{}
	args := make(map[string]interface{}, len(items)*4)

	for i, item := range items {
		key := fmt.Sprintf("id%d", i)
		ids[i] = ":" + key
		args[key] = item.ID
		args["qty"+key] = item.Quantity
		args["sub"+key] = item.AmountSubtotal
		args["tot"+key] = item.AmountTotal

		fmt.Fprintf(&quantityCase, " WHEN id = :%s THEN :qty%s", key, key)
		fmt.Fprintf(&subtotalCase, " WHEN id = :%s THEN :sub%s", key, key)
		fmt.Fprintf(&totalCase, " WHEN id = :%s THEN :tot%s", key, key)
	}

	query := fmt.Sprintf(`
		UPDATE invoice_items SET
			quantity = CASE%s END,
			amount_subtotal = CASE%s END,
			amount_total = CASE%s END
		WHERE id IN (%s)`,
		quantityCase.String(), subtotalCase.String(), totalCase.String(), strings.Join(ids, ", "))

	_, err := r.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update invoice item amounts").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}
