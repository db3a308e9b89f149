package creditgrant

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// CreditGrant is a customer-scoped balance of prepaid credit, consumed
// FIFO by earliest ExpiresAt when InvoiceFinalizer applies credits to an
// invoice's total.
type CreditGrant struct {
	ID              string                  `db:"id" json:"id"`
	CustomerID      string                  `db:"customer_id" json:"customer_id"`
	Currency        string                  `db:"currency" json:"currency"`
	PaymentProvider string                  `db:"payment_provider" json:"payment_provider"`
	TotalAmount     decimal.Decimal         `db:"total_amount" json:"total_amount"`
	AmountUsed      decimal.Decimal         `db:"amount_used" json:"amount_used"`
	ExpiresAt       *time.Time              `db:"expires_at" json:"expires_at,omitempty"`
	Active          bool                    `db:"active" json:"active"`
	Reason          types.CreditGrantReason `db:"reason" json:"reason"`

	types.BaseModel
}

func (c *CreditGrant) Validate() error {
	if c.CustomerID == "" {
		return ierr.NewError("customer_id is required").Mark(ierr.ErrValidation)
	}
	if c.Currency == "" {
		return ierr.NewError("currency is required").Mark(ierr.ErrValidation)
	}
	if c.TotalAmount.IsNegative() {
		return ierr.NewError("total_amount must be non-negative").Mark(ierr.ErrValidation)
	}
	if c.AmountUsed.IsNegative() || c.AmountUsed.GreaterThan(c.TotalAmount) {
		return ierr.NewError("amount_used must satisfy 0 <= amountUsed <= totalAmount").
			Mark(ierr.ErrInvariantViolation)
	}
	return c.Reason.Validate()
}

// Remaining returns the unconsumed balance available to apply to invoices.
func (c *CreditGrant) Remaining() decimal.Decimal {
	return c.TotalAmount.Sub(c.AmountUsed)
}

// RecomputeActive applies active = amountUsed < totalAmount ∧ (expiresAt is
// null ∨ expiresAt > now).
func (c *CreditGrant) RecomputeActive(now time.Time) {
	notFullyUsed := c.AmountUsed.LessThan(c.TotalAmount)
	notExpired := c.ExpiresAt == nil || c.ExpiresAt.After(now)
	c.Active = notFullyUsed && notExpired
}

// Apply consumes amount against the grant, updating AmountUsed and Active.
// Returns the portion actually applied (capped at Remaining()).
func (c *CreditGrant) Apply(amount decimal.Decimal, now time.Time) decimal.Decimal {
	applied := decimal.Min(amount, c.Remaining())
	if applied.IsNegative() {
		applied = decimal.Zero
	}
	c.AmountUsed = c.AmountUsed.Add(applied)
	c.RecomputeActive(now)
	return applied
}
