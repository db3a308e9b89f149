package subscription

import (
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// SubscriptionItem binds a phase to one priced feature. Units nil means
// usage-based (the PeriodMaterializer reads quantity from the UsageMeter);
// Units set means a fixed-quantity flat/tiered line (e.g. seats).
type SubscriptionItem struct {
	ID                   string `db:"id" json:"id"`
	SubscriptionPhaseID  string `db:"subscription_phase_id" json:"subscription_phase_id"`
	SubscriptionID       string `db:"subscription_id" json:"subscription_id"`
	FeaturePlanVersionID string `db:"feature_plan_version_id" json:"feature_plan_version_id"`

	Units *int64 `db:"units" json:"units,omitempty"`

	types.BaseModel
}

func (li *SubscriptionItem) Validate() error {
	if li.SubscriptionPhaseID == "" {
		return ierr.NewError("subscription_phase_id is required").Mark(ierr.ErrValidation)
	}
	if li.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").Mark(ierr.ErrValidation)
	}
	if li.FeaturePlanVersionID == "" {
		return ierr.NewError("feature_plan_version_id is required").Mark(ierr.ErrValidation)
	}
	if li.Units != nil && *li.Units < 0 {
		return ierr.NewError("units must be non-negative").Mark(ierr.ErrValidation)
	}
	return nil
}

// IsUsageBased reports whether this item's quantity is read from metered
// usage rather than a fixed unit count.
func (li *SubscriptionItem) IsUsageBased() bool {
	return li.Units == nil
}
