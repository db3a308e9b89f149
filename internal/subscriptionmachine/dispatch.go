package subscriptionmachine

import (
	"context"
	"time"

	"github.com/usagebilling/core/internal/types"
)

// dispatch evaluates one event against the state restore resolved to,
// returning the stable state the invoke chain lands on. It never returns a
// transitional State as the final target — every branch below ends on a
// stable state or propagates an error for Run to convert to StateError.
func (m *Machine) dispatch(ctx context.Context, mc *machineContext, current State, event types.MachineEventType, payload EventPayload, now time.Time) (State, error) {
	switch current {
	case StateTrialing:
		return m.dispatchTrialing(ctx, mc, event, payload, now)
	case StateActive:
		return m.dispatchActive(ctx, mc, event, payload, now)
	case StatePastDue:
		return m.dispatchPastDue(ctx, mc, event, payload, now)
	case StateCanceled, StateExpired:
		return current, guardFailed(current, event, "terminal")
	default:
		return StateError, guardFailed(current, event, "unreachable restored state")
	}
}

func (m *Machine) dispatchTrialing(ctx context.Context, mc *machineContext, event types.MachineEventType, payload EventPayload, now time.Time) (State, error) {
	switch event {
	case types.MachineEventBillingPeriod:
		if !mc.sub.Active {
			return StateError, guardFailed(StateTrialing, event, "subscriptionActive")
		}
		if _, err := m.materializer.Materialize(ctx, mc.sub, mc.phase, now); err != nil {
			return StateError, err
		}
		return StateTrialing, nil

	case types.MachineEventRenew:
		var failed []string
		if !isTrialExpired(mc.phase, now) {
			failed = append(failed, "isTrialExpired")
		}
		if !hasValidPaymentMethod(mc.pv, mc.phase) {
			failed = append(failed, "hasValidPaymentMethod")
		}
		if !canRenew(mc.phase, now) {
			failed = append(failed, "canRenew")
		}
		if len(failed) > 0 {
			return StateError, guardFailed(StateTrialing, event, failed...)
		}
		if err := m.renew(ctx, mc, now); err != nil {
			return StateError, err
		}
		return StateActive, nil

	case types.MachineEventPause:
		if err := m.pause(ctx, mc, payload, now); err != nil {
			return StateError, err
		}
		return StateTrialing, nil

	default:
		return StateError, guardFailed(StateTrialing, event, "unhandled event")
	}
}

func (m *Machine) dispatchActive(ctx context.Context, mc *machineContext, event types.MachineEventType, payload EventPayload, now time.Time) (State, error) {
	switch event {
	case types.MachineEventInvoice:
		return m.invoiceTransition(ctx, mc, StateActive, now)

	case types.MachineEventRenew:
		if canRenew(mc.phase, now) && isAutoRenewEnabled(mc.sub) {
			if err := m.renew(ctx, mc, now); err != nil {
				return StateError, err
			}
			return StateActive, nil
		}
		if !isAutoRenewEnabled(mc.sub) {
			return StateExpired, nil
		}
		return StateError, guardFailed(StateActive, event, "canRenew")

	case types.MachineEventCancel:
		if err := m.cancel(ctx, mc, now); err != nil {
			return StateError, err
		}
		return StateCanceled, nil

	case types.MachineEventChange:
		if err := m.change(ctx, mc, payload, now); err != nil {
			return StateError, err
		}
		return StateActive, nil

	case types.MachineEventPaymentSuccess, types.MachineEventInvoiceSuccess:
		return m.successTransition(ctx, mc, now)

	case types.MachineEventPaymentFailure, types.MachineEventInvoiceFailure:
		return StatePastDue, nil

	case types.MachineEventPause:
		if err := m.pause(ctx, mc, payload, now); err != nil {
			return StateError, err
		}
		return StateActive, nil

	case types.MachineEventResume:
		if err := m.resume(ctx, mc, now); err != nil {
			return StateError, err
		}
		return StateActive, nil

	default:
		return StateError, guardFailed(StateActive, event, "unhandled event")
	}
}

func (m *Machine) dispatchPastDue(ctx context.Context, mc *machineContext, event types.MachineEventType, payload EventPayload, now time.Time) (State, error) {
	switch event {
	case types.MachineEventInvoice:
		return m.invoiceTransition(ctx, mc, StatePastDue, now)

	case types.MachineEventPaymentSuccess, types.MachineEventInvoiceSuccess:
		// "same routing as active": a success clears past_due either way,
		// renewing first when the phase bills in advance and is due.
		return m.successTransition(ctx, mc, now)

	case types.MachineEventCancel:
		if err := m.cancel(ctx, mc, now); err != nil {
			return StateError, err
		}
		return StateCanceled, nil

	default:
		return StateError, guardFailed(StatePastDue, event, "unhandled event")
	}
}

// invoiceTransition is the INVOICE guard+invoke shared by active and
// past_due: hasValidPaymentMethod ∧ hasDueBillingPeriods, then
// invoiceSubscription, self-looping on selfLoop.
func (m *Machine) invoiceTransition(ctx context.Context, mc *machineContext, selfLoop State, now time.Time) (State, error) {
	var failed []string
	if !hasValidPaymentMethod(mc.pv, mc.phase) {
		failed = append(failed, "hasValidPaymentMethod")
	}
	due, err := m.hasDueBillingPeriods(ctx, mc.sub.ID, now)
	if err != nil {
		return StateError, err
	}
	if !due {
		failed = append(failed, "hasDueBillingPeriods")
	}
	if len(failed) > 0 {
		return StateError, guardFailed(selfLoop, types.MachineEventInvoice, failed...)
	}
	if _, err := m.assembler.Assemble(ctx, mc.sub.ID, now); err != nil {
		return StateError, err
	}
	return selfLoop, nil
}

// successTransition is PAYMENT_SUCCESS/INVOICE_SUCCESS's shared routing:
// renew when the phase is paid in advance and due, landing on active
// either way (a success always clears past_due).
func (m *Machine) successTransition(ctx context.Context, mc *machineContext, now time.Time) (State, error) {
	if isAdvanceBilling(mc.pv) && canRenew(mc.phase, now) {
		if err := m.renew(ctx, mc, now); err != nil {
			return StateError, err
		}
	}
	return StateActive, nil
}
