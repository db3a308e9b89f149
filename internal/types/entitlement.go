package types

import (
	"github.com/samber/lo"
	ierr "github.com/usagebilling/core/internal/ierr"
)

// ResetConfig describes when a feature's usage cycle rolls over. All grants
// for one feature must share the same ResetConfig (§3 invariant).
type ResetConfig string

const (
	ResetConfigBillingPeriod ResetConfig = "billing_period"
	ResetConfigNever         ResetConfig = "never"
)

func (r ResetConfig) Validate() error {
	if r == "" {
		return nil
	}

	allowed := []ResetConfig{
		ResetConfigBillingPeriod,
		ResetConfigNever,
	}

	if !lo.Contains(allowed, r) {
		return ierr.NewError("invalid reset config").
			WithHint("Invalid reset config").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": r,
			}).
			Mark(ierr.ErrValidation)
	}

	return nil
}
