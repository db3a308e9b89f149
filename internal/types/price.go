package types

import (
	"github.com/samber/lo"
	ierr "github.com/usagebilling/core/internal/ierr"
)

// BillingModel is how a FeaturePlanVersion's config is priced.
type BillingModel string

// Interval is the recurrence unit of a plan version's billing cycle.
type Interval string

// TierMode selects how a graduated vs. volume tier ladder prices quantity.
type TierMode string

type PriceType string

const (
	PriceTypeUsage PriceType = "usage"
	PriceTypeFixed PriceType = "fixed"

	BillingModelFlatFee BillingModel = "flat_fee"
	BillingModelPackage BillingModel = "package"
	BillingModelTiered  BillingModel = "tiered"

	IntervalMinute  Interval = "minute"
	IntervalDay     Interval = "day"
	IntervalWeek    Interval = "week"
	IntervalMonth   Interval = "month"
	IntervalYear    Interval = "year"
	IntervalOneTime Interval = "onetime"

	// TierModeVolume prices all units at the rate of the tier the final unit
	// falls into.
	TierModeVolume TierMode = "volume"
	// TierModeGraduated prices each tier's units at that tier's rate and
	// sums the subranges (a.k.a. slab pricing).
	TierModeGraduated TierMode = "graduated"

	MaxBillingAmountCents = 1_000_000_000_000 // 1 trillion minor units, safeguard

	RoundUp      = "up"
	RoundDown    = "down"
	RoundNearest = "nearest"

	DefaultFloatingPrecision = 2
)

func (i Interval) Validate() error {
	allowed := []Interval{
		IntervalMinute, IntervalDay, IntervalWeek, IntervalMonth, IntervalYear, IntervalOneTime,
	}
	if !lo.Contains(allowed, i) {
		return ierr.NewError("invalid interval").
			WithHint("Invalid billing interval").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": i,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (t TierMode) Validate() error {
	allowed := []TierMode{TierModeVolume, TierModeGraduated}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid tier mode").
			WithHint("Invalid tier mode").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
