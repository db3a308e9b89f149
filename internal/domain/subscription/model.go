package subscription

import (
	"time"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// Subscription is the billing-lifecycle root the SubscriptionMachine drives.
// Its cycle window always mirrors the currently active phase; plan changes
// are modeled as phase succession rather than mutating this row directly.
type Subscription struct {
	ID         string `db:"id" json:"id"`
	ProjectID  string `db:"project_id" json:"project_id"`
	CustomerID string `db:"customer_id" json:"customer_id"`

	Status types.SubscriptionStatus `db:"status" json:"status"`
	Active bool                     `db:"active" json:"active"`

	PlanSlug string `db:"plan_slug" json:"plan_slug"`

	CurrentCycleStartAt time.Time `db:"current_cycle_start_at" json:"current_cycle_start_at"`
	CurrentCycleEndAt   time.Time `db:"current_cycle_end_at" json:"current_cycle_end_at"`

	Timezone string `db:"timezone" json:"timezone"`

	// AutoRenew gates whether RENEW on an active/past_due subscription
	// proceeds to renewing or falls through to expired.
	AutoRenew bool `db:"auto_renew" json:"auto_renew"`

	// Version guards optimistic-lock updates from concurrent machine runs.
	Version int `db:"version" json:"version"`

	types.BaseModel
}

func (s *Subscription) Validate() error {
	if s.CustomerID == "" {
		return ierr.NewError("customer_id is required").Mark(ierr.ErrValidation)
	}
	if s.PlanSlug == "" {
		return ierr.NewError("plan_slug is required").Mark(ierr.ErrValidation)
	}
	if err := s.Status.Validate(); err != nil {
		return err
	}
	if s.CurrentCycleEndAt.Before(s.CurrentCycleStartAt) {
		return ierr.NewError("current_cycle_end_at must not be before current_cycle_start_at").
			Mark(ierr.ErrInvariantViolation)
	}
	return nil
}

// RecomputeActive applies active == true iff status ∉ {canceled, expired}.
func (s *Subscription) RecomputeActive() {
	s.Active = !s.Status.IsTerminal()
}
