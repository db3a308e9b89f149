package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/usagebilling/core/internal/domain/invoice"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type invoiceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
	items  *lineItemRepository
}

func NewInvoiceRepository(db *postgres.DB, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{db: db, logger: logger, items: &lineItemRepository{db: db, logger: logger}}
}

const insertInvoiceQuery = `
	INSERT INTO invoices (
		id, project_id, subscription_id, subscription_phase_id, customer_id, status,
		statement_key, statement_start_at, statement_end_at, cycle_start_at, cycle_end_at,
		due_at, past_due_at, issue_date, paid_at, sent_at, failure_reason,
		subtotal, total, amount_credit_used, payment_method_id, payment_provider, currency,
		when_to_bill, collection_method, invoice_payment_provider_id, invoice_payment_provider_url,
		payment_attempts, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :project_id, :subscription_id, :subscription_phase_id, :customer_id, :status,
		:statement_key, :statement_start_at, :statement_end_at, :cycle_start_at, :cycle_end_at,
		:due_at, :past_due_at, :issue_date, :paid_at, :sent_at, :failure_reason,
		:subtotal, :total, :amount_credit_used, :payment_method_id, :payment_provider, :currency,
		:when_to_bill, :collection_method, :invoice_payment_provider_id, :invoice_payment_provider_url,
		:payment_attempts, :created_at, :updated_at, :created_by, :updated_by
	)`

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	_, err := r.db.NamedExecContext(ctx, insertInvoiceQuery, inv)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create invoice").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM invoices WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get invoice").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("invoice not found").
			WithReportableDetails(map[string]any{"invoice_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&inv); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan invoice").Mark(ierr.ErrDependencyMissing)
	}
	return &inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		UPDATE invoices SET
			status = :status,
			due_at = :due_at,
			past_due_at = :past_due_at,
			issue_date = :issue_date,
			paid_at = :paid_at,
			sent_at = :sent_at,
			failure_reason = :failure_reason,
			subtotal = :subtotal,
			total = :total,
			amount_credit_used = :amount_credit_used,
			payment_method_id = :payment_method_id,
			invoice_payment_provider_id = :invoice_payment_provider_id,
			invoice_payment_provider_url = :invoice_payment_provider_url,
			payment_attempts = :payment_attempts,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, inv)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to update invoice").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *invoiceRepository) GetByStatementKey(ctx context.Context, projectID, statementKey string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	query := `
		SELECT * FROM invoices
		WHERE project_id = :project_id AND statement_key = :statement_key AND status = 'draft'`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"project_id":    projectID,
		"statement_key": statementKey,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get invoice by statement key").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("invoice not found").
			WithReportableDetails(map[string]any{"project_id": projectID, "statement_key": statementKey}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&inv); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan invoice").Mark(ierr.ErrDependencyMissing)
	}
	return &inv, nil
}

func (r *invoiceRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*invoice.Invoice, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM invoices WHERE subscription_id = :subscription_id ORDER BY created_at DESC", map[string]interface{}{"subscription_id": subscriptionID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list invoices by subscription").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func (r *invoiceRepository) ListByCustomer(ctx context.Context, projectID, customerID string) ([]*invoice.Invoice, error) {
	query := "SELECT * FROM invoices WHERE project_id = :project_id AND customer_id = :customer_id ORDER BY created_at DESC"
	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{
		"project_id":  projectID,
		"customer_id": customerID,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list invoices by customer").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func (r *invoiceRepository) ListDueForCollection(ctx context.Context, asOf int64) ([]*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE status = 'waiting'
			OR (status = 'unpaid' AND due_at <= to_timestamp(:as_of))
		ORDER BY due_at`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"as_of": asOf})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list invoices due for collection").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func (r *invoiceRepository) ListPastDue(ctx context.Context, asOf int64) ([]*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE status = 'unpaid' AND past_due_at <= to_timestamp(:as_of)
		ORDER BY past_due_at`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"as_of": asOf})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list past due invoices").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func (r *invoiceRepository) ListForFinalization(ctx context.Context, asOf int64) ([]*invoice.Invoice, error) {
	query := `
		SELECT * FROM invoices
		WHERE status = 'draft'
			OR (status = 'unpaid' AND invoice_payment_provider_id IS NULL)
		ORDER BY created_at`

	rows, err := r.db.NamedQueryContext(ctx, query, map[string]interface{}{"as_of": asOf})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list invoices for finalization").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

// CreateWithItems inserts the invoice and its items atomically so a reader
// never observes an invoice with a partial line-item set.
func (r *invoiceRepository) CreateWithItems(ctx context.Context, inv *invoice.Invoice, items []*invoice.InvoiceItem) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		if err := r.Create(ctx, inv); err != nil {
			return err
		}
		for _, item := range items {
			if _, err := r.items.Create(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *invoiceRepository) AddItems(ctx context.Context, invoiceID string, items []*invoice.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		for _, item := range items {
			item.InvoiceID = invoiceID
			if _, err := r.items.Create(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendPaymentAttempt appends to the JSONB history in place via jsonb
// concatenation, rather than a read-modify-write round trip, so concurrent
// attempts against the same invoice never clobber each other's history.
func (r *invoiceRepository) AppendPaymentAttempt(ctx context.Context, invoiceID string, attempt invoice.PaymentAttempt) error {
	attemptList := invoice.PaymentAttemptList{attempt}
	query := `
		UPDATE invoices SET payment_attempts = payment_attempts || :attempt::jsonb
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":      invoiceID,
		"attempt": attemptList,
	})
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to append payment attempt").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func scanInvoices(rows *sqlx.Rows) ([]*invoice.Invoice, error) {
	var invoices []*invoice.Invoice
	for rows.Next() {
		var inv invoice.Invoice
		if err := rows.StructScan(&inv); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan invoice").Mark(ierr.ErrDependencyMissing)
		}
		invoices = append(invoices, &inv)
	}
	return invoices, nil
}
