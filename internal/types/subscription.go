package types

import (
	"github.com/samber/lo"
	ierr "github.com/usagebilling/core/internal/ierr"
)

// SubscriptionStatus is the lifecycle status driven by the SubscriptionMachine.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the machine will not transition out of this
// status again.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusExpired
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
		SubscriptionStatusExpired,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CollectionMethod determines how an unpaid invoice is collected.
type CollectionMethod string

const (
	CollectionMethodChargeAutomatically CollectionMethod = "charge_automatically"
	CollectionMethodSendInvoice         CollectionMethod = "send_invoice"
)

func (c CollectionMethod) String() string {
	return string(c)
}

func (c CollectionMethod) Validate() error {
	allowed := []CollectionMethod{
		CollectionMethodChargeAutomatically,
		CollectionMethodSendInvoice,
	}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid collection method").
			WithHint("Invalid collection method").
			WithReportableDetails(map[string]any{
				"collection_method": c,
				"allowed_values":    allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// WhenToBill determines whether an item's billing period is invoiced at the
// start or the end of its cycle.
type WhenToBill string

const (
	WhenToBillPayInAdvance WhenToBill = "pay_in_advance"
	WhenToBillPayInArrear  WhenToBill = "pay_in_arrear"
)

func (w WhenToBill) Validate() error {
	allowed := []WhenToBill{WhenToBillPayInAdvance, WhenToBillPayInArrear}
	if !lo.Contains(allowed, w) {
		return ierr.NewError("invalid when_to_bill").
			WithHint("Invalid when_to_bill").
			WithReportableDetails(map[string]any{
				"allowed_values": allowed,
				"provided_value": w,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PauseStatus represents the pause state of a subscription (mid-cycle
// pause/resume is a supplemented feature, not a status of its own — a
// paused subscription stays `active`, and PeriodMaterializer does not read
// pauses, so billing periods are still generated).
type PauseStatus string

const (
	PauseStatusNone      PauseStatus = "none"
	PauseStatusActive    PauseStatus = "active"
	PauseStatusScheduled PauseStatus = "scheduled"
	PauseStatusCompleted PauseStatus = "completed"
	PauseStatusCancelled PauseStatus = "cancelled"
)

func (s PauseStatus) String() string {
	return string(s)
}

func (s PauseStatus) Validate() error {
	allowed := []PauseStatus{
		PauseStatusNone,
		PauseStatusActive,
		PauseStatusScheduled,
		PauseStatusCompleted,
		PauseStatusCancelled,
	}

	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid pause status").
			WithHint("Invalid pause status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}

	return nil
}

// BillingPeriodStatus is the lifecycle status of a materialized BillingPeriod.
type BillingPeriodStatus string

const (
	BillingPeriodStatusPending  BillingPeriodStatus = "pending"
	BillingPeriodStatusInvoiced BillingPeriodStatus = "invoiced"
	BillingPeriodStatusVoid     BillingPeriodStatus = "void"
)

// BillingPeriodType distinguishes a normal cycle period from one cut short
// by a mid-cycle plan change or a trial.
type BillingPeriodType string

const (
	BillingPeriodTypeNormal         BillingPeriodType = "normal"
	BillingPeriodTypeMidCycleChange BillingPeriodType = "mid_cycle_change"
	BillingPeriodTypeTrial          BillingPeriodType = "trial"
)
