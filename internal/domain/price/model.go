package price

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/usagebilling/core/internal/types"
)

// Price is a FeaturePlanVersion's pricing config: either a flat unit price,
// a package transform, or a tier ladder (graduated or volume), matched
// against the featureType the version declares.
type Price struct {
	ID string `db:"id" json:"id"`

	FeaturePlanVersionID string `db:"feature_plan_version_id" json:"feature_plan_version_id"`

	// Amount is the flat per-unit price in minor currency units; used
	// directly for BillingModelFlatFee and as the package unit price for
	// BillingModelPackage.
	Amount   int    `db:"amount" json:"amount"`
	Currency string `db:"currency" json:"currency"`

	BillingModel types.BillingModel `db:"billing_model" json:"billing_model"`

	// TierMode selects graduated vs volume pricing when BillingModel is tiered.
	TierMode *types.TierMode `db:"tier_mode" json:"tier_mode,omitempty"`
	Tiers    PriceTierList   `db:"tiers" json:"tiers,omitempty"`

	// Transform configures package-size rounding: quantity priced is
	// raw / Transform.DivideBy rounded per Transform.Round (up by default).
	Transform *PriceTransform `db:"transform" json:"transform,omitempty"`

	Description string         `db:"description" json:"description"`
	Metadata    types.Metadata `db:"metadata" json:"metadata"`

	types.BaseModel
}

// PriceTier is one rung of a graduated/volume tier ladder. UpTo nil means
// "infinity" — the final, unbounded tier.
type PriceTier struct {
	UpTo       *int `json:"up_to"`
	UnitAmount int  `json:"unit_amount"`
	FlatAmount *int `json:"flat_amount,omitempty"`
}

// PriceTierList is the stored form of a Price's tier ladder, marshaled as a
// single JSONB column.
type PriceTierList []PriceTier

func (t *PriceTierList) Scan(value interface{}) error {
	if value == nil {
		*t = PriceTierList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	result := PriceTierList{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*t = result
	return nil
}

func (t PriceTierList) Value() (driver.Value, error) {
	if t == nil {
		return json.Marshal(PriceTierList{})
	}
	return json.Marshal(t)
}

type PriceTransform struct {
	DivideBy int    `json:"divide_by"`
	Round    string `json:"round"` // up, down, or nearest
}

func (t *PriceTransform) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	return json.Unmarshal(bytes, t)
}

func (t *PriceTransform) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}
