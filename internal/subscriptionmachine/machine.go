// Package subscriptionmachine implements SubscriptionMachine (spec.md
// §4.10): the finite state machine that drives one Subscription's lifecycle.
// States are a tagged variant, transitions a pure function of (state, event,
// context), and invokes run as a single sequential chain per event — no
// actor/workflow library is wired here since none appears anywhere in the
// example pack; spec.md §9's own guidance is to model this as a hand-rolled
// tagged-variant transition table rather than reach for go.temporal.io.
package subscriptionmachine

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/calendar"
	"github.com/usagebilling/core/internal/domain/plan"
	"github.com/usagebilling/core/internal/domain/subscription"
	"github.com/usagebilling/core/internal/domain/subscriptionlock"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/invoiceassembler"
	"github.com/usagebilling/core/internal/lock"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/periodmaterializer"
	"github.com/usagebilling/core/internal/types"
)

// State is one node of the machine's tagged variant: the stable states
// mirror types.SubscriptionStatus, the rest are transitional invokes that
// always resolve to a stable state or State_Error.
type State string

const (
	StateLoading                  State = "loading"
	StateRestored                 State = "restored"
	StateGeneratingBillingPeriods State = "generating_billing_periods"
	StateInvoicing                State = "invoicing"
	StateRenewing                 State = "renewing"
	StateCanceling                State = "canceling"
	StateChanging                 State = "changing"
	StateExpiring                 State = "expiring"
	StatePausing                  State = "pausing"
	StateResuming                 State = "resuming"
	StateError                    State = "error"

	StateTrialing State = State(types.SubscriptionStatusTrialing)
	StateActive   State = State(types.SubscriptionStatusActive)
	StatePastDue  State = State(types.SubscriptionStatusPastDue)
	StateCanceled State = State(types.SubscriptionStatusCanceled)
	StateExpired  State = State(types.SubscriptionStatusExpired)
)

// EventPayload carries the per-event data a transition's invoke may need,
// beyond the subscription/phase/planVersion the machine loads itself.
type EventPayload struct {
	// NewPlanVersionID and ItemOriginalAmountCents are required for CHANGE;
	// the latter is passed through to
	// periodmaterializer.HandleMidCycleChange unchanged.
	NewPlanVersionID        string
	ItemOriginalAmountCents map[string]int64

	// PauseMode/ResumeMode/Reason are required for PAUSE.
	PauseMode  types.PauseMode
	ResumeMode types.ResumeMode
	Reason     string
}

// Result is what one Run call resolved to: the state the machine landed on
// and, for State_Error, why.
type Result struct {
	State        State
	Subscription *subscription.Subscription
	ErrorMessage string
}

type Machine struct {
	subs         subscription.Repository
	phases       subscription.PhaseRepository
	periods      subscription.BillingPeriodRepository
	pauses       subscription.PauseRepository
	plans        plan.Repository
	planVersions plan.VersionRepository
	locks        subscriptionlock.Repository
	materializer *periodmaterializer.Materializer
	assembler    *invoiceassembler.Assembler
	logger       *logger.Logger
}

func New(
	subs subscription.Repository,
	phases subscription.PhaseRepository,
	periods subscription.BillingPeriodRepository,
	pauses subscription.PauseRepository,
	plans plan.Repository,
	planVersions plan.VersionRepository,
	locks subscriptionlock.Repository,
	materializer *periodmaterializer.Materializer,
	assembler *invoiceassembler.Assembler,
	log *logger.Logger,
) *Machine {
	return &Machine{
		subs:         subs,
		phases:       phases,
		periods:      periods,
		pauses:       pauses,
		plans:        plans,
		planVersions: planVersions,
		locks:        locks,
		materializer: materializer,
		assembler:    assembler,
		logger:       log,
	}
}

// machineContext is what loading/restored resolve once per Run, threaded
// through the rest of the dispatch.
type machineContext struct {
	sub   *subscription.Subscription
	phase *subscription.SubscriptionPhase
	pv    *plan.PlanVersion
}

// Emit implements paymentcollector.EventEmitter, letting PaymentCollector
// report PAYMENT_SUCCESS/PAYMENT_FAILURE back onto this subscription's queue
// without this package depending on that one.
func (m *Machine) Emit(ctx context.Context, subscriptionID string, event types.MachineEventType) error {
	_, err := m.Run(ctx, subscriptionID, event, EventPayload{}, time.Now())
	return err
}

// Run dispatches one event against one subscription's current state and
// blocks until the invoke chain resolves to a stable state or an error.
// Events against the same subscription are serialized by SubscriptionLock
// rather than an in-process queue (spec.md §9: "prefer the persisted
// SubscriptionLock... because workers are horizontally scaled"), which also
// gives the "per-instance FIFO" guarantee across a scaled-out fleet, not
// just within one process.
func (m *Machine) Run(ctx context.Context, subscriptionID string, event types.MachineEventType, payload EventPayload, now time.Time) (*Result, error) {
	mc, err := m.load(ctx, subscriptionID, now)
	if err != nil {
		return nil, err
	}

	sl := lock.New(m.locks, m.logger, mc.sub.ProjectID, subscriptionID)
	acquired, err := sl.Acquire(ctx, now, lock.DefaultTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ierr.NewError("subscription is busy with another machine run").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrInvalidOperation)
	}
	defer func() {
		if rerr := sl.Release(ctx); rerr != nil {
			m.logger.Errorw("failed to release subscription lock", "subscription_id", subscriptionID, "error", rerr)
		}
	}()

	current, err := m.restore(mc)
	if err != nil {
		return &Result{State: StateError, Subscription: mc.sub, ErrorMessage: err.Error()}, err
	}

	target, err := m.dispatch(ctx, mc, current, event, payload, now)
	if err != nil {
		return &Result{State: StateError, Subscription: mc.sub, ErrorMessage: err.Error()}, err
	}

	if err := m.persist(ctx, mc.sub, target); err != nil {
		return nil, err
	}
	return &Result{State: target, Subscription: mc.sub}, nil
}

// load implements the `loading` invoke: loadSubscription.
func (m *Machine) load(ctx context.Context, subscriptionID string, now time.Time) (*machineContext, error) {
	sub, err := m.subs.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	phase, err := m.phases.GetActive(ctx, subscriptionID, now.Unix())
	if err != nil {
		return nil, err
	}
	if phase == nil {
		return nil, ierr.NewError("subscription has no active phase").
			WithReportableDetails(map[string]any{"subscription_id": subscriptionID}).
			Mark(ierr.ErrInvariantViolation)
	}
	pv, err := m.planVersions.Get(ctx, phase.PlanVersionID)
	if err != nil {
		return nil, err
	}
	return &machineContext{sub: sub, phase: phase, pv: pv}, nil
}

// restore implements the `restored` routing: guard on loaded status.
func (m *Machine) restore(mc *machineContext) (State, error) {
	switch mc.sub.Status {
	case types.SubscriptionStatusTrialing:
		return StateTrialing, nil
	case types.SubscriptionStatusActive:
		return StateActive, nil
	case types.SubscriptionStatusPastDue:
		return StatePastDue, nil
	case types.SubscriptionStatusCanceled:
		return StateCanceled, nil
	case types.SubscriptionStatusExpired:
		return StateExpired, nil
	default:
		return StateError, ierr.NewError("subscription has unrecognized status").
			WithReportableDetails(map[string]any{"status": mc.sub.Status}).
			Mark(ierr.ErrInvariantViolation)
	}
}

// persist writes {status, active} for every transition that lands on a
// stable state, per spec.md §4.10. Terminal states are idempotent no-ops on
// repeated writes.
func (m *Machine) persist(ctx context.Context, sub *subscription.Subscription, target State) error {
	sub.Status = types.SubscriptionStatus(target)
	sub.RecomputeActive()
	return m.subs.Update(ctx, sub)
}

// guardFailed builds the spec.md §7 "business guard failure" error,
// enumerating exactly which predicate(s) failed.
func guardFailed(fromState State, event types.MachineEventType, failed ...string) error {
	return ierr.NewError("guard failed for transition").
		WithReportableDetails(map[string]any{
			"state":         fromState,
			"event":         event,
			"failed_guards": failed,
		}).
		Mark(ierr.ErrGuardFailed)
}

// --- Guards (pure predicates on the loaded context) ---

// canRenew: now >= phase.renewAt and the phase has not ended.
func canRenew(phase *subscription.SubscriptionPhase, now time.Time) bool {
	if phase.RenewAt == nil || now.Before(*phase.RenewAt) {
		return false
	}
	return phase.EndAt == nil || !phase.EndAt.Before(now)
}

// isTrialExpired: trialEndsAt <= now.
func isTrialExpired(phase *subscription.SubscriptionPhase, now time.Time) bool {
	return phase.TrialEndsAt != nil && !phase.TrialEndsAt.After(now)
}

// hasValidPaymentMethod: a payment method is only required when the plan
// collects by charging a stored instrument automatically; send_invoice
// plans never require one upfront. (Open Question decision: the domain
// model has no separate requiredPaymentMethod flag, so CollectionMethod
// stands in for it — see DESIGN.md.)
func hasValidPaymentMethod(pv *plan.PlanVersion, phase *subscription.SubscriptionPhase) bool {
	if pv.CollectionMethod != types.CollectionMethodChargeAutomatically {
		return true
	}
	return phase.PaymentMethodID != nil
}

// isAutoRenewEnabled: the teacher models auto-renew at the subscription
// level (toggled account-wide), not per PlanVersion — see DESIGN.md.
func isAutoRenewEnabled(sub *subscription.Subscription) bool {
	return sub.AutoRenew
}

// isAdvanceBilling: whenToBill = pay_in_advance.
func isAdvanceBilling(pv *plan.PlanVersion) bool {
	return pv.WhenToBill == types.WhenToBillPayInAdvance
}

// hasDueBillingPeriods: at least one pending period for this subscription
// has invoiceAt <= now.
func (m *Machine) hasDueBillingPeriods(ctx context.Context, subscriptionID string, now time.Time) (bool, error) {
	due, err := m.periods.ListDue(ctx, subscriptionID, now.Unix())
	if err != nil {
		return false, err
	}
	return len(due) > 0, nil
}

// calendarParams builds calendar.Params for the currently loaded phase/plan
// version, shared by the renew invoke.
func calendarParams(phase *subscription.SubscriptionPhase, pv *plan.PlanVersion) calendar.Params {
	return calendar.Params{
		EffectiveStartDate: phase.StartAt,
		EffectiveEndDate:   phase.EndAt,
		TrialEndsAt:        phase.TrialEndsAt,
		Billing: calendar.BillingConfig{
			Interval:      pv.Interval,
			IntervalCount: pv.IntervalCount,
			Anchor:        pv.Anchor,
		},
	}
}
