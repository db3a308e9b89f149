package creditgrantapplication

import (
	"github.com/shopspring/decimal"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// CreditGrantApplication records one FIFO slice of a CreditGrant consumed
// against an Invoice's total by the finalizer's applyCredits step.
type CreditGrantApplication struct {
	ID            string          `db:"id" json:"id"`
	InvoiceID     string          `db:"invoice_id" json:"invoice_id"`
	CreditGrantID string          `db:"credit_grant_id" json:"credit_grant_id"`
	AmountApplied decimal.Decimal `db:"amount_applied" json:"amount_applied"`

	types.BaseModel
}

func (a *CreditGrantApplication) Validate() error {
	if a.InvoiceID == "" {
		return ierr.NewError("invoice_id is required").Mark(ierr.ErrValidation)
	}
	if a.CreditGrantID == "" {
		return ierr.NewError("credit_grant_id is required").Mark(ierr.ErrValidation)
	}
	if a.AmountApplied.IsNegative() || a.AmountApplied.IsZero() {
		return ierr.NewError("amount_applied must be positive").Mark(ierr.ErrValidation)
	}
	return nil
}
