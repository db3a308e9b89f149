package invoice

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// Invoice groups one or more billing periods that share a statementKey into
// a single bill. InvoiceAssembler creates it as draft; InvoiceFinalizer
// computes totals and moves it to unpaid/void; PaymentCollector drives it
// to a terminal state.
type Invoice struct {
	ID                  string              `db:"id" json:"id"`
	ProjectID           string              `db:"project_id" json:"project_id"`
	SubscriptionID      string              `db:"subscription_id" json:"subscription_id"`
	SubscriptionPhaseID string              `db:"subscription_phase_id" json:"subscription_phase_id"`
	CustomerID          string              `db:"customer_id" json:"customer_id"`
	Status              types.InvoiceStatus `db:"status" json:"status"`

	StatementKey     string    `db:"statement_key" json:"statement_key"`
	StatementStartAt time.Time `db:"statement_start_at" json:"statement_start_at"`
	StatementEndAt   time.Time `db:"statement_end_at" json:"statement_end_at"`
	CycleStartAt     time.Time `db:"cycle_start_at" json:"cycle_start_at"`
	CycleEndAt       time.Time `db:"cycle_end_at" json:"cycle_end_at"`

	DueAt     time.Time  `db:"due_at" json:"due_at"`
	PastDueAt time.Time  `db:"past_due_at" json:"past_due_at"`
	IssueDate *time.Time `db:"issue_date" json:"issue_date,omitempty"`
	PaidAt    *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	SentAt    *time.Time `db:"sent_at" json:"sent_at,omitempty"`

	// FailureReason is set when PaymentCollector drives an invoice to
	// failed, e.g. "pending_expiration" for an exhausted/past-due invoice.
	FailureReason *string `db:"failure_reason" json:"failure_reason,omitempty"`

	Subtotal         decimal.Decimal `db:"subtotal" json:"subtotal"`
	Total            decimal.Decimal `db:"total" json:"total"`
	AmountCreditUsed decimal.Decimal `db:"amount_credit_used" json:"amount_credit_used"`

	PaymentMethodID *string `db:"payment_method_id" json:"payment_method_id,omitempty"`
	PaymentProvider string  `db:"payment_provider" json:"payment_provider"`
	Currency        string  `db:"currency" json:"currency"`

	WhenToBill       types.WhenToBill       `db:"when_to_bill" json:"when_to_bill"`
	CollectionMethod types.CollectionMethod `db:"collection_method" json:"collection_method"`

	InvoicePaymentProviderID  *string `db:"invoice_payment_provider_id" json:"invoice_payment_provider_id,omitempty"`
	InvoicePaymentProviderURL *string `db:"invoice_payment_provider_url" json:"invoice_payment_provider_url,omitempty"`

	PaymentAttempts PaymentAttemptList `db:"payment_attempts" json:"payment_attempts"`

	types.BaseModel
}

const MaxPaymentAttempts = 10

// PaymentAttempt is one PaymentCollector attempt against the provider.
type PaymentAttempt struct {
	AttemptedAt time.Time                  `json:"attempted_at"`
	Status      types.PaymentAttemptStatus `json:"status"`
	FailureCode string                     `json:"failure_code,omitempty"`
}

// PaymentAttemptList is the stored form of an Invoice's attempt history,
// marshaled as a single JSONB column rather than a child table.
type PaymentAttemptList []PaymentAttempt

func (p *PaymentAttemptList) Scan(value interface{}) error {
	if value == nil {
		*p = PaymentAttemptList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	result := PaymentAttemptList{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*p = result
	return nil
}

func (p PaymentAttemptList) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(PaymentAttemptList{})
	}
	return json.Marshal(p)
}

func (i *Invoice) Validate() error {
	if i.Subtotal.IsNegative() {
		return ierr.NewError("subtotal must be non-negative").Mark(ierr.ErrValidation)
	}
	if i.Total.IsNegative() {
		return ierr.NewError("total must be non-negative").Mark(ierr.ErrValidation)
	}
	if len(i.PaymentAttempts) > MaxPaymentAttempts {
		return ierr.NewError("too many payment attempts").
			WithReportableDetails(map[string]any{"max": MaxPaymentAttempts, "count": len(i.PaymentAttempts)}).
			Mark(ierr.ErrInvariantViolation)
	}
	return nil
}

// RecomputeTotal applies total = max(0, subtotal - amountCreditUsed).
func (i *Invoice) RecomputeTotal() {
	total := i.Subtotal.Sub(i.AmountCreditUsed)
	if total.IsNegative() {
		total = decimal.Zero
	}
	i.Total = total
}
