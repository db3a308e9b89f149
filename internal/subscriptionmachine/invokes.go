package subscriptionmachine

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/calendar"
	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/periodmaterializer"
	"github.com/usagebilling/core/internal/types"
)

// renew implements the renewSubscription invoke (spec.md §4.10): compute
// the current window at now, compute the next window just past current's
// end, and no-op if the subscription's cycle fields and the phase's
// renewAt already equal the computed values.
func (m *Machine) renew(ctx context.Context, mc *machineContext, now time.Time) error {
	params := calendarParams(mc.phase, mc.pv)

	current, err := calendar.CycleWindow(params, now)
	if err != nil {
		return err
	}
	if current == nil {
		return ierr.NewError("no active cycle window to renew").
			WithReportableDetails(map[string]any{"subscription_id": mc.sub.ID}).
			Mark(ierr.ErrInvariantViolation)
	}

	next, err := calendar.CycleWindow(params, current.End.Add(time.Nanosecond))
	if err != nil {
		return err
	}
	var nextStart *time.Time
	if next != nil {
		nextStart = &next.Start
	}

	sameRenewAt := (mc.phase.RenewAt == nil && nextStart == nil) ||
		(mc.phase.RenewAt != nil && nextStart != nil && mc.phase.RenewAt.Equal(*nextStart))
	if mc.sub.CurrentCycleStartAt.Equal(current.Start) && mc.sub.CurrentCycleEndAt.Equal(current.End) && sameRenewAt {
		return nil
	}

	mc.sub.CurrentCycleStartAt = current.Start
	mc.sub.CurrentCycleEndAt = current.End

	pl, err := m.plans.Get(ctx, mc.pv.PlanID)
	if err != nil {
		return err
	}
	mc.sub.PlanSlug = pl.Slug

	mc.phase.RenewAt = nextStart
	return m.phases.Update(ctx, mc.phase)
}

// cancel closes the active phase at now; CANCEL's persisted status write is
// left to Run/persist.
func (m *Machine) cancel(ctx context.Context, mc *machineContext, now time.Time) error {
	mc.phase.EndAt = &now
	return m.phases.Update(ctx, mc.phase)
}

// change implements the CHANGE invoke (PhaseTransition, spec.md §4 Mid-cycle
// plan change / phase succession): delegate the phase split and proration
// credit to PeriodMaterializer.HandleMidCycleChange, then adopt the new
// phase and plan version as the machine's current context.
func (m *Machine) change(ctx context.Context, mc *machineContext, payload EventPayload, now time.Time) error {
	if payload.NewPlanVersionID == "" {
		return ierr.NewError("new_plan_version_id is required for CHANGE").Mark(ierr.ErrValidation)
	}

	result, err := m.materializer.HandleMidCycleChange(ctx, periodmaterializer.MidCycleChangeInput{
		Subscription:            mc.sub,
		OldPhase:                mc.phase,
		NewPlanVersionID:        payload.NewPlanVersionID,
		ItemOriginalAmountCents: payload.ItemOriginalAmountCents,
		Now:                     now,
	})
	if err != nil {
		return err
	}

	newPV, err := m.planVersions.Get(ctx, payload.NewPlanVersionID)
	if err != nil {
		return err
	}
	newPlan, err := m.plans.Get(ctx, newPV.PlanID)
	if err != nil {
		return err
	}

	mc.phase = result.NewPhase
	mc.pv = newPV
	mc.sub.PlanSlug = newPlan.Slug
	return nil
}

// pause creates an active SubscriptionPause; the subscription's status is
// left as it is (a pause has no status of its own). PeriodMaterializer does
// not read pauses, so billing periods keep being generated while a pause is
// active.
func (m *Machine) pause(ctx context.Context, mc *machineContext, payload EventPayload, now time.Time) error {
	p := &subscription.SubscriptionPause{
		SubscriptionID:       mc.sub.ID,
		PauseStatus:          types.PauseStatusActive,
		PauseMode:            payload.PauseMode,
		ResumeMode:           payload.ResumeMode,
		PauseStart:           now,
		OriginalCycleStartAt: mc.sub.CurrentCycleStartAt,
		OriginalCycleEndAt:   mc.sub.CurrentCycleEndAt,
		Reason:               payload.Reason,
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return m.pauses.Create(ctx, p)
}

// resume closes out the subscription's currently active pause.
func (m *Machine) resume(ctx context.Context, mc *machineContext, now time.Time) error {
	active, err := m.pauses.GetActive(ctx, mc.sub.ID)
	if err != nil {
		return err
	}
	if active == nil {
		return ierr.NewError("no active pause to resume").
			WithReportableDetails(map[string]any{"subscription_id": mc.sub.ID}).
			Mark(ierr.ErrInvalidOperation)
	}
	resumedAt := now
	active.PauseStatus = types.PauseStatusCompleted
	active.ResumedAt = &resumedAt
	return m.pauses.Update(ctx, active)
}
