package plan

import (
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// Plan is the bare identity a Subscription's planSlug resolves to. Plan
// authoring (pricing formula definition) happens outside the core; it only
// consumes published PlanVersion/FeaturePlanVersion records.
type Plan struct {
	ID          string `db:"id" json:"id"`
	ProjectID   string `db:"project_id" json:"project_id"`
	Slug        string `db:"slug" json:"slug"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	types.BaseModel
}

func (p *Plan) Validate() error {
	if p.Slug == "" {
		return ierr.NewError("slug is required").Mark(ierr.ErrValidation)
	}
	return nil
}

// PlanVersionStatus gates whether a version can still be attached to new
// grants; published versions are immutable.
type PlanVersionStatus string

const (
	PlanVersionStatusDraft     PlanVersionStatus = "draft"
	PlanVersionStatusPublished PlanVersionStatus = "published"
)

// PlanVersion is one immutable (once published) billing configuration
// generation for a Plan: the cycle cadence and payment terms shared by all
// FeaturePlanVersions on it.
type PlanVersion struct {
	ID      string            `db:"id" json:"id"`
	PlanID  string            `db:"plan_id" json:"plan_id"`
	Version int               `db:"version" json:"version"`
	Status  PlanVersionStatus `db:"status" json:"status"`

	Currency         string                 `db:"currency" json:"currency"`
	PaymentProvider  string                 `db:"payment_provider" json:"payment_provider"`
	WhenToBill       types.WhenToBill       `db:"when_to_bill" json:"when_to_bill"`
	CollectionMethod types.CollectionMethod `db:"collection_method" json:"collection_method"`

	Interval      types.Interval `db:"interval" json:"interval"`
	IntervalCount int            `db:"interval_count" json:"interval_count"`
	// Anchor is where the cycle grid is pinned: day-of-month (month/year;
	// 0 is treated as day 1), weekday 0=Sun..6=Sat (week), hour (day), or
	// second (minute).
	Anchor int `db:"anchor" json:"anchor"`

	TrialPeriodDays int `db:"trial_period_days" json:"trial_period_days"`

	// GracePeriodDays is how long an invoice may sit unpaid past dueAt
	// before PaymentCollector's past-due transition fires.
	GracePeriodDays int `db:"grace_period_days" json:"grace_period_days"`

	types.BaseModel
}

func (pv *PlanVersion) Validate() error {
	if pv.PlanID == "" {
		return ierr.NewError("plan_id is required").Mark(ierr.ErrValidation)
	}
	if err := pv.Interval.Validate(); err != nil {
		return err
	}
	if pv.IntervalCount <= 0 {
		return ierr.NewError("interval_count must be positive").Mark(ierr.ErrValidation)
	}
	return nil
}

func (pv *PlanVersion) Publish() error {
	if pv.Status == PlanVersionStatusPublished {
		return ierr.NewError("plan version already published").Mark(ierr.ErrInvalidOperation)
	}
	pv.Status = PlanVersionStatusPublished
	return nil
}

// FeaturePlanVersion is the immutable-once-published billing config for one
// feature within a PlanVersion: what kind of entitlement it grants and, via
// the price package, how usage against it is priced. All grants for one
// feature must share FeatureType, ResetConfig and AggregationMethod.
type FeaturePlanVersion struct {
	ID            string `db:"id" json:"id"`
	PlanVersionID string `db:"plan_version_id" json:"plan_version_id"`
	FeatureID     string `db:"feature_id" json:"feature_id"`

	FeatureType       types.FeatureType     `db:"feature_type" json:"feature_type"`
	AggregationMethod types.AggregationType `db:"aggregation_method" json:"aggregation_method"`

	Limit       *int              `db:"limit_value" json:"limit,omitempty"`
	HardLimit   bool              `db:"hard_limit" json:"hard_limit"`
	ResetConfig types.ResetConfig `db:"reset_config" json:"reset_config"`

	types.BaseModel
}

func (f *FeaturePlanVersion) Validate() error {
	if f.PlanVersionID == "" {
		return ierr.NewError("plan_version_id is required").Mark(ierr.ErrValidation)
	}
	if f.FeatureID == "" {
		return ierr.NewError("feature_id is required").Mark(ierr.ErrValidation)
	}
	if err := f.FeatureType.Validate(); err != nil {
		return err
	}
	if f.FeatureType.IsMetered() && !f.AggregationMethod.Validate() {
		return ierr.NewError("invalid aggregation_method for metered feature").Mark(ierr.ErrValidation)
	}
	return f.ResetConfig.Validate()
}
