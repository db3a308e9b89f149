package entitlement

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// Entitlement is the per-customer, per-feature runtime aggregate the
// EntitlementEvaluator verifies usage against. It is recomputed whenever the
// customer's active grant set for the feature changes.
type Entitlement struct {
	ID          string            `db:"id" json:"id"`
	ProjectID   string            `db:"project_id" json:"project_id"`
	CustomerID  string            `db:"customer_id" json:"customer_id"`
	FeatureSlug string            `db:"feature_slug" json:"feature_slug"`
	FeatureType types.FeatureType `db:"feature_type" json:"feature_type"`

	// Limit is nil for unlimited features; HardLimit decides whether
	// exceeding it denies the call or merely flags it.
	Limit     *int64 `db:"usage_limit" json:"limit,omitempty"`
	HardLimit bool   `db:"hard_limit" json:"hard_limit"`

	ResetConfig       types.ResetConfig     `db:"reset_config" json:"reset_config"`
	AggregationMethod types.AggregationType `db:"aggregation_method" json:"aggregation_method"`
	Timezone          string                `db:"timezone" json:"timezone"`

	CurrentCycleStartAt time.Time `db:"current_cycle_start_at" json:"current_cycle_start_at"`
	CurrentCycleEndAt   time.Time `db:"current_cycle_end_at" json:"current_cycle_end_at"`
	CurrentCycleUsage   float64   `db:"current_cycle_usage" json:"current_cycle_usage"`
	AccumulatedUsage    float64   `db:"accumulated_usage" json:"accumulated_usage"`

	// Version is a hash of the active grant set; it changes whenever grants
	// are added, superseded, or expire, and is used as the cache fence key.
	Version string `db:"version" json:"version"`

	Grants GrantSnapshotList `db:"grants" json:"grants"`
	Meter  MeterState        `db:"meter" json:"meter"`

	types.BaseModel
}

// GrantSnapshot is the merged, priority-ordered view of one contributing
// grant at the time the entitlement was last recomputed.
type GrantSnapshot struct {
	GrantID              string `json:"grant_id"`
	Type                 string `json:"type"`
	Priority             int    `json:"priority"`
	Limit                *int64 `json:"limit,omitempty"`
	HardLimit            bool   `json:"hard_limit"`
	Units                *int64 `json:"units,omitempty"`
	EffectiveAt          int64  `json:"effective_at"`
	ExpiresAt            *int64 `json:"expires_at,omitempty"`
	FeaturePlanVersionID string `json:"feature_plan_version_id,omitempty"`
}

// GrantSnapshotList is the stored form of an Entitlement's merged grant set,
// marshaled as a single JSONB column rather than a child table.
type GrantSnapshotList []GrantSnapshot

func (g *GrantSnapshotList) Scan(value interface{}) error {
	if value == nil {
		*g = GrantSnapshotList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	result := GrantSnapshotList{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*g = result
	return nil
}

func (g GrantSnapshotList) Value() (driver.Value, error) {
	if g == nil {
		return json.Marshal(GrantSnapshotList{})
	}
	return json.Marshal(g)
}

// MeterState is the UsageMeter's reconciliation cursor, embedded on the
// entitlement so verify/reportUsage can read and update it without a join.
type MeterState struct {
	LastReconciledID string     `json:"last_reconciled_id,omitempty"`
	SnapshotUsage    float64    `json:"snapshot_usage"`
	LastUpdated      time.Time  `json:"last_updated"`
	Usage            float64    `json:"usage"`
	LastCycleStart   *time.Time `json:"last_cycle_start,omitempty"`
}

func (m *MeterState) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	return json.Unmarshal(bytes, m)
}

func (m MeterState) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (e *Entitlement) Validate() error {
	if e.CustomerID == "" {
		return ierr.NewError("customer_id is required").Mark(ierr.ErrValidation)
	}
	if e.FeatureSlug == "" {
		return ierr.NewError("feature_slug is required").Mark(ierr.ErrValidation)
	}
	if err := e.FeatureType.Validate(); err != nil {
		return ierr.NewError(err.Error()).Mark(ierr.ErrValidation)
	}
	if err := e.ResetConfig.Validate(); err != nil {
		return err
	}
	return nil
}

// Remaining returns the units left before Limit is hit, or nil if
// unlimited.
func (e *Entitlement) Remaining() *int64 {
	if e.Limit == nil {
		return nil
	}
	remaining := *e.Limit - int64(e.CurrentCycleUsage)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
