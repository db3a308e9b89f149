package proration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/types"
)

// Calculator computes the proration coefficient PeriodMaterializer/
// InvoiceAssembler apply to a mid-cycle BillingPeriod's InvoiceItem.
type Calculator interface {
	Calculate(ctx context.Context, params FactorParams) (Factor, error)
}

// NewCalculator builds a day/second-based proration Calculator.
func NewCalculator(logger *logger.Logger) Calculator {
	return &calculatorImpl{logger: logger}
}

type calculatorImpl struct {
	logger *logger.Logger
}

func (c *calculatorImpl) Calculate(ctx context.Context, params FactorParams) (Factor, error) {
	if err := validateParams(params); err != nil {
		return decimal.Zero, err
	}

	loc, err := time.LoadLocation(params.CustomerTimezone)
	if err != nil {
		return decimal.Zero, ierr.NewError(err.Error()).
			WithHintf("failed to load customer timezone '%s'", params.CustomerTimezone).
			Mark(ierr.ErrValidation)
	}

	cycleStart := params.CycleStart.In(loc)
	cycleEnd := params.CycleEnd.In(loc)
	prorationDate := params.ProrationDate.In(loc)

	var factor decimal.Decimal

	switch params.Strategy {
	case types.ProrationStrategySecondBased:
		totalSeconds := cycleEnd.Sub(cycleStart).Seconds()
		if totalSeconds <= 0 {
			return decimal.Zero, ierr.NewError("invalid billing cycle").
				WithHintf("total seconds is zero or negative (%v to %v)", cycleStart, cycleEnd).
				Mark(ierr.ErrValidation)
		}
		remainingSeconds := cycleEnd.Sub(prorationDate).Seconds()
		if remainingSeconds < 0 {
			remainingSeconds = 0
		}
		factor = decimal.NewFromFloat(remainingSeconds).Div(decimal.NewFromFloat(totalSeconds))

	case types.ProrationStrategyDayBased:
		totalDays := daysInDurationWithDST(cycleStart, cycleEnd, loc) + 1
		if totalDays <= 0 {
			return decimal.Zero, ierr.NewError("invalid billing cycle").
				WithHintf("total days is zero or negative (%v to %v)", cycleStart, cycleEnd).
				Mark(ierr.ErrValidation)
		}
		remainingDays := daysInDurationWithDST(prorationDate, cycleEnd, loc) + 1
		if remainingDays < 0 {
			remainingDays = 0
		}
		factor = decimal.NewFromInt(int64(remainingDays)).Div(decimal.NewFromInt(int64(totalDays)))

	default:
		return decimal.Zero, ierr.NewError("invalid proration strategy").
			WithHintf("invalid proration strategy: %s", params.Strategy).
			Mark(ierr.ErrValidation)
	}

	c.logger.Debugf("proration factor: %s (strategy=%s, date=%v)", factor, params.Strategy, prorationDate)
	return factor, nil
}

// daysInDurationWithDST counts calendar days between two dates while properly
// handling DST transitions: a 23- or 25-hour day during a DST shift still
// counts as exactly one calendar day in the customer's timezone.
func daysInDurationWithDST(start, end time.Time, loc *time.Location) int {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)

	if startDay.Equal(endDay) {
		return 0
	}

	days := 0
	for current := startDay; current.Before(endDay); current = current.AddDate(0, 0, 1) {
		days++
	}
	return days
}

func validateParams(params FactorParams) error {
	if params.ProrationDate.IsZero() {
		return ierr.NewError("proration date is required").Mark(ierr.ErrValidation)
	}
	if params.CycleStart.IsZero() || params.CycleEnd.IsZero() {
		return ierr.NewError("cycle start and end are required").Mark(ierr.ErrValidation)
	}
	if params.CycleEnd.Before(params.CycleStart) {
		return ierr.NewError("cycle end must not be before cycle start").Mark(ierr.ErrValidation)
	}
	if params.CustomerTimezone == "" {
		return ierr.NewError("customer timezone is required").Mark(ierr.ErrValidation)
	}
	return params.Strategy.Validate()
}
