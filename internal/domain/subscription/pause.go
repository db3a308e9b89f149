package subscription

import (
	"time"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// SubscriptionPause records a mid-cycle pause window on a subscription.
// While paused the subscription stays `active` — pausing stops the
// PeriodMaterializer from generating new billing periods for it rather
// than introducing a status of its own.
type SubscriptionPause struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	PauseStatus types.PauseStatus `db:"pause_status" json:"pause_status"`
	PauseMode   types.PauseMode   `db:"pause_mode" json:"pause_mode"`
	ResumeMode  types.ResumeMode  `db:"resume_mode" json:"resume_mode,omitempty"`

	PauseStart time.Time  `db:"pause_start" json:"pause_start"`
	PauseEnd   *time.Time `db:"pause_end" json:"pause_end,omitempty"`
	ResumedAt  *time.Time `db:"resumed_at" json:"resumed_at,omitempty"`

	OriginalCycleStartAt time.Time `db:"original_cycle_start_at" json:"original_cycle_start_at"`
	OriginalCycleEndAt   time.Time `db:"original_cycle_end_at" json:"original_cycle_end_at"`

	Reason string `db:"reason" json:"reason,omitempty"`

	types.BaseModel
}

func (sp *SubscriptionPause) Validate() error {
	if sp.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").Mark(ierr.ErrValidation)
	}
	if err := sp.PauseMode.Validate(); err != nil {
		return err
	}
	if sp.PauseEnd != nil && !sp.PauseEnd.After(sp.PauseStart) {
		return ierr.NewError("pause_end must be after pause_start").Mark(ierr.ErrValidation)
	}
	return sp.PauseStatus.Validate()
}

// IsActiveAt reports whether the pause covers t.
func (sp *SubscriptionPause) IsActiveAt(t time.Time) bool {
	if sp.PauseStatus != types.PauseStatusActive {
		return false
	}
	if sp.PauseStart.After(t) {
		return false
	}
	if sp.PauseEnd != nil && sp.PauseEnd.Before(t) {
		return false
	}
	return true
}
