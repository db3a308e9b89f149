package types

import (
	"fmt"

	"github.com/samber/lo"
	ierr "github.com/usagebilling/core/internal/ierr"
)

// CreditGrantReason records why a credit grant was issued.
type CreditGrantReason string

const (
	CreditGrantReasonDowngradeInAdvance CreditGrantReason = "downgrade_in_advance"
	CreditGrantReasonArrearRefund       CreditGrantReason = "arrear_refund"
	CreditGrantReasonOverdueOffset      CreditGrantReason = "overdue_offset"
	CreditGrantReasonManual             CreditGrantReason = "manual"
)

func (r CreditGrantReason) Validate() error {
	allowed := []CreditGrantReason{
		CreditGrantReasonDowngradeInAdvance,
		CreditGrantReasonArrearRefund,
		CreditGrantReasonOverdueOffset,
		CreditGrantReasonManual,
	}

	if !lo.Contains(allowed, r) {
		return ierr.NewError("invalid credit grant reason").
			WithHint(fmt.Sprintf("Credit grant reason must be one of: %v", allowed)).
			Mark(ierr.ErrValidation)
	}

	return nil
}
