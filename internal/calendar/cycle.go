// Package calendar implements CalendarCycle: pure functions computing cycle
// windows and proration factors from an anchor and interval. No DB or
// network access — every function here is deterministic given its inputs.
package calendar

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// BillingConfig is the recurrence shape a cycle grid is computed against.
// Anchor's meaning depends on Interval: day-of-month (month, year), weekday
// 0=Sun..6=Sat (week), hour-of-day (day), or second-of-minute (minute).
type BillingConfig struct {
	Interval      types.Interval
	IntervalCount int
	Anchor        int
}

// Params are the full inputs CycleWindow needs to locate the window
// containing a given instant.
type Params struct {
	EffectiveStartDate time.Time
	EffectiveEndDate   *time.Time
	TrialEndsAt        *time.Time
	Billing            BillingConfig
}

// Window is a half-open cycle span: now == End always belongs to the next
// window, never this one.
type Window struct {
	Start time.Time
	End   time.Time
}

// farFuture stands in for "+∞" on a onetime item with no trial.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// CycleWindow returns the window containing now, or nil (no error) if now
// falls outside [EffectiveStartDate, EffectiveEndDate).
func CycleWindow(p Params, now time.Time) (*Window, error) {
	if now.Before(p.EffectiveStartDate) {
		return nil, nil
	}
	if p.EffectiveEndDate != nil && !now.Before(*p.EffectiveEndDate) {
		return nil, nil
	}

	var w Window
	if p.Billing.Interval == types.IntervalOneTime {
		w.Start = p.EffectiveStartDate
		if p.TrialEndsAt != nil {
			w.End = *p.TrialEndsAt
		} else {
			w.End = farFuture
		}
	} else {
		win, err := recurringWindow(p, now)
		if err != nil {
			return nil, err
		}
		w = win
	}

	if p.EffectiveEndDate != nil && w.End.After(*p.EffectiveEndDate) {
		w.End = *p.EffectiveEndDate
	}
	return &w, nil
}

func recurringWindow(p Params, now time.Time) (Window, error) {
	cfg := p.Billing
	if cfg.IntervalCount <= 0 {
		return Window{}, ierr.NewError("interval_count must be positive").Mark(ierr.ErrValidation)
	}

	switch cfg.Interval {
	case types.IntervalMonth:
		return monthGridWindow(p.EffectiveStartDate, now, cfg.IntervalCount, cfg.Anchor), nil
	case types.IntervalYear:
		return monthGridWindow(p.EffectiveStartDate, now, cfg.IntervalCount*12, cfg.Anchor), nil
	case types.IntervalWeek:
		step := 7 * 24 * time.Hour * time.Duration(cfg.IntervalCount)
		ref := alignedReference(p.EffectiveStartDate, cfg.Interval, cfg.Anchor)
		return durationGridWindow(ref, now, step), nil
	case types.IntervalDay:
		step := 24 * time.Hour * time.Duration(cfg.IntervalCount)
		ref := alignedReference(p.EffectiveStartDate, cfg.Interval, cfg.Anchor)
		return durationGridWindow(ref, now, step), nil
	case types.IntervalMinute:
		step := time.Minute * time.Duration(cfg.IntervalCount)
		ref := alignedReference(p.EffectiveStartDate, cfg.Interval, cfg.Anchor)
		return durationGridWindow(ref, now, step), nil
	default:
		return Window{}, ierr.NewError("unsupported billing interval").Mark(ierr.ErrValidation)
	}
}

// alignedReference finds the most recent instant at or before start whose
// weekday/hour/second matches anchor, the zero point of a fixed-duration grid.
func alignedReference(start time.Time, interval types.Interval, anchor int) time.Time {
	switch interval {
	case types.IntervalWeek:
		d := start.Truncate(24 * time.Hour)
		offset := (int(d.Weekday()) - anchor + 7) % 7
		return d.AddDate(0, 0, -offset)
	case types.IntervalDay:
		d := start.Truncate(time.Hour)
		offset := (d.Hour() - anchor + 24) % 24
		return d.Add(-time.Duration(offset) * time.Hour)
	case types.IntervalMinute:
		d := start.Truncate(time.Second)
		offset := (d.Second() - anchor + 60) % 60
		return d.Add(-time.Duration(offset) * time.Second)
	default:
		return start
	}
}

// durationGridWindow walks a fixed-duration grid anchored at ref to find the
// step-sized window containing now.
func durationGridWindow(ref, now time.Time, step time.Duration) Window {
	n := now.Sub(ref) / step
	boundary := ref.Add(n * step)
	for boundary.After(now) {
		boundary = boundary.Add(-step)
	}
	for !now.Before(boundary.Add(step)) {
		boundary = boundary.Add(step)
	}
	return Window{Start: boundary, End: boundary.Add(step)}
}

// daysInMonth is the number of days in (y, m).
func daysInMonth(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// monthDayRollForward returns anchorDay in (y, m), or day 1 of the following
// month if anchorDay doesn't exist in (y, m) — the roll-forward rule spec.md
// §4.1 mandates instead of clamping to the month's last day.
func monthDayRollForward(y int, m time.Month, anchorDay int, loc *time.Location) time.Time {
	if anchorDay <= 0 {
		anchorDay = 1
	}
	if anchorDay > daysInMonth(y, m) {
		y2, m2 := y, m+1
		if m2 > 12 {
			m2 = 1
			y2++
		}
		return time.Date(y2, m2, 1, 0, 0, 0, 0, loc)
	}
	return time.Date(y, m, anchorDay, 0, 0, 0, 0, loc)
}

// addMonthsRollForward steps base's (year, month) by months (positive or
// negative), re-deriving the roll-forward anchor day in the target month.
func addMonthsRollForward(base time.Time, months, anchorDay int) time.Time {
	y, m, _ := base.Date()
	total := int(m) - 1 + months
	y += total / 12
	mi := total % 12
	if mi < 0 {
		mi += 12
		y--
	}
	return monthDayRollForward(y, time.Month(mi+1), anchorDay, base.Location())
}

// monthGridWindow anchors a stepMonths-wide grid at anchorDay, starting from
// the grid point at or before start, then walks to bracket now. Each
// boundary's successor is derived from that boundary's own (year, month),
// so a short-month roll-forward (e.g. Feb 29 -> Mar 1) shifts the whole
// remaining grid forward rather than drifting back to the nominal day.
func monthGridWindow(start, now time.Time, stepMonths, anchorDay int) Window {
	y, m, _ := start.Date()
	boundary := monthDayRollForward(y, m, anchorDay, start.Location())
	if boundary.After(start) {
		boundary = addMonthsRollForward(boundary, -stepMonths, anchorDay)
	}
	for boundary.After(now) {
		boundary = addMonthsRollForward(boundary, -stepMonths, anchorDay)
	}
	next := addMonthsRollForward(boundary, stepMonths, anchorDay)
	for !now.Before(next) {
		boundary = next
		next = addMonthsRollForward(boundary, stepMonths, anchorDay)
	}
	return Window{Start: boundary, End: next}
}

// ProrationFactor is (serviceEnd - max(serviceStart, EffectiveStartDate)) over
// the standard cycle length the grid produces for the window containing
// serviceStart. Trial service always prorates to zero.
func ProrationFactor(p Params, serviceStart, serviceEnd time.Time, isTrial bool) (decimal.Decimal, error) {
	if isTrial {
		return decimal.Zero, nil
	}

	win, err := CycleWindow(p, serviceStart)
	if err != nil {
		return decimal.Zero, err
	}
	if win == nil {
		return decimal.Zero, ierr.NewError("service start is outside the subscription's effective window").
			Mark(ierr.ErrInvariantViolation)
	}

	denom := win.End.Sub(win.Start)
	if denom <= 0 {
		return decimal.Zero, ierr.NewError("degenerate cycle window").Mark(ierr.ErrInvariantViolation)
	}

	from := serviceStart
	if p.EffectiveStartDate.After(from) {
		from = p.EffectiveStartDate
	}
	numer := serviceEnd.Sub(from)
	if numer < 0 {
		numer = 0
	}

	factor := decimal.NewFromFloat(numer.Seconds()).Div(decimal.NewFromFloat(denom.Seconds()))
	if factor.GreaterThan(decimal.NewFromInt(1)) {
		factor = decimal.NewFromInt(1)
	}
	if factor.LessThan(decimal.Zero) {
		factor = decimal.Zero
	}
	return factor, nil
}

// GracePeriod is a plain (non-grid, non-roll-forward) calendar offset used
// for dueAt/pastDueAt arithmetic — spec.md §4.1 calls this out explicitly as
// "plain calendar arithmetic", distinct from CycleWindow's anchor grid.
type GracePeriod struct {
	Interval types.Interval
	Count    int
}

// NextDateAfter adds a grace period to start using ordinary calendar
// arithmetic (Go's native month/year day-overflow rules apply — this
// function does not roll forward short months the way CycleWindow does).
func NextDateAfter(start time.Time, g GracePeriod) time.Time {
	switch g.Interval {
	case types.IntervalMinute:
		return start.Add(time.Duration(g.Count) * time.Minute)
	case types.IntervalDay:
		return start.AddDate(0, 0, g.Count)
	case types.IntervalWeek:
		return start.AddDate(0, 0, 7*g.Count)
	case types.IntervalMonth:
		return start.AddDate(0, g.Count, 0)
	case types.IntervalYear:
		return start.AddDate(g.Count, 0, 0)
	default:
		return start
	}
}
