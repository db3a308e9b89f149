package subscription

import (
	"time"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// SubscriptionPhase is a time-boxed billing configuration generation of a
// Subscription. Phases of the same subscription must not overlap in
// [StartAt, EndAt); plan changes close the current phase by setting EndAt
// and open a successor rather than mutating the existing one.
type SubscriptionPhase struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`
	PlanVersionID  string `db:"plan_version_id" json:"plan_version_id"`

	PaymentMethodID *string `db:"payment_method_id" json:"payment_method_id,omitempty"`

	TrialEndsAt *time.Time `db:"trial_ends_at" json:"trial_ends_at,omitempty"`

	StartAt time.Time  `db:"start_at" json:"start_at"`
	EndAt   *time.Time `db:"end_at" json:"end_at,omitempty"`

	CurrentCycleStartAt time.Time  `db:"current_cycle_start_at" json:"current_cycle_start_at"`
	CurrentCycleEndAt   time.Time  `db:"current_cycle_end_at" json:"current_cycle_end_at"`
	RenewAt             *time.Time `db:"renew_at" json:"renew_at,omitempty"`

	BillingAnchor time.Time `db:"billing_anchor" json:"billing_anchor"`

	types.BaseModel
}

func (sp *SubscriptionPhase) Validate() error {
	if sp.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").Mark(ierr.ErrValidation)
	}
	if sp.PlanVersionID == "" {
		return ierr.NewError("plan_version_id is required").Mark(ierr.ErrValidation)
	}
	if sp.EndAt != nil && !sp.EndAt.After(sp.StartAt) {
		return ierr.NewError("end_at must be after start_at").Mark(ierr.ErrValidation)
	}
	if sp.TrialEndsAt != nil {
		if sp.TrialEndsAt.Before(sp.StartAt) {
			return ierr.NewError("trial_ends_at must not be before start_at").Mark(ierr.ErrInvariantViolation)
		}
		if sp.EndAt != nil && !sp.TrialEndsAt.Before(*sp.EndAt) {
			return ierr.NewError("trial_ends_at must be before end_at").Mark(ierr.ErrInvariantViolation)
		}
	}
	return nil
}

// IsActive reports whether t falls within [StartAt, EndAt).
func (sp *SubscriptionPhase) IsActive(t time.Time) bool {
	if sp.StartAt.After(t) {
		return false
	}
	if sp.EndAt != nil && !sp.EndAt.After(t) {
		return false
	}
	return true
}

// Overlaps reports whether this phase's [StartAt, EndAt) window overlaps other's.
func (sp *SubscriptionPhase) Overlaps(other *SubscriptionPhase) bool {
	aEnd := maxTime
	if sp.EndAt != nil {
		aEnd = *sp.EndAt
	}
	bEnd := maxTime
	if other.EndAt != nil {
		bEnd = *other.EndAt
	}
	return sp.StartAt.Before(bEnd) && other.StartAt.Before(aEnd)
}

var maxTime = time.Unix(1<<62, 0)
