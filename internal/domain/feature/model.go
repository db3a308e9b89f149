package feature

import (
	"github.com/usagebilling/core/internal/types"
)

// Feature is the slug/name a FeaturePlanVersion's pricing config and an
// Entitlement's featureSlug both reference. Pricing formula authoring lives
// outside the core; this is just the identity the rest of the system keys
// off of.
type Feature struct {
	ID           string            `db:"id" json:"id"`
	ProjectID    string            `db:"project_id" json:"project_id"`
	Name         string            `db:"name" json:"name"`
	Slug         string            `db:"slug" json:"slug"`
	Description  string            `db:"description" json:"description"`
	MeterID      string            `db:"meter_id" json:"meter_id"`
	Metadata     types.Metadata    `db:"metadata" json:"metadata"`
	Type         types.FeatureType `db:"type" json:"type"`
	UnitSingular string            `db:"unit_singular" json:"unit_singular"`
	UnitPlural   string            `db:"unit_plural" json:"unit_plural"`

	types.BaseModel
}
