package types

import (
	"github.com/samber/lo"
	ierr "github.com/usagebilling/core/internal/ierr"
)

// ProrationStrategy defines how the proration coefficient is calculated.
type ProrationStrategy string

const (
	ProrationStrategyDayBased    ProrationStrategy = "day_based"
	ProrationStrategySecondBased ProrationStrategy = "second_based"
)

func (s ProrationStrategy) Validate() error {
	allowed := []ProrationStrategy{ProrationStrategyDayBased, ProrationStrategySecondBased}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid proration strategy").
			WithHint("Proration strategy must be day_based or second_based").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
