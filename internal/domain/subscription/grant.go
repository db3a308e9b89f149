package subscription

import (
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// Grant is an append-only entitlement allowance against one
// FeaturePlanVersion. Superseding a grant never mutates it — a new row is
// inserted and the old one is logically deleted, so Entitlement.Version can
// be computed as a hash of the active set.
type Grant struct {
	ID                   string                 `db:"id" json:"id"`
	SubjectType          types.GrantSubjectType `db:"subject_type" json:"subject_type"`
	SubjectID            string                 `db:"subject_id" json:"subject_id"`
	FeaturePlanVersionID string                 `db:"feature_plan_version_id" json:"feature_plan_version_id"`

	Type     types.GrantType `db:"type" json:"type"`
	Priority int             `db:"priority" json:"priority"`

	EffectiveAt int64  `db:"effective_at" json:"effective_at"`
	ExpiresAt   *int64 `db:"expires_at" json:"expires_at,omitempty"`

	Limit     *int64 `db:"limit_value" json:"limit,omitempty"`
	HardLimit bool   `db:"hard_limit" json:"hard_limit"`
	Units     *int64 `db:"units" json:"units,omitempty"`

	Deleted bool `db:"deleted" json:"deleted"`

	types.BaseModel
}

func (g *Grant) Validate() error {
	if g.SubjectID == "" {
		return ierr.NewError("subject_id is required").Mark(ierr.ErrValidation)
	}
	if g.FeaturePlanVersionID == "" {
		return ierr.NewError("feature_plan_version_id is required").Mark(ierr.ErrValidation)
	}
	if err := g.SubjectType.Validate(); err != nil {
		return err
	}
	if err := g.Type.Validate(); err != nil {
		return err
	}
	if g.ExpiresAt != nil && *g.ExpiresAt <= g.EffectiveAt {
		return ierr.NewError("expires_at must be after effective_at").Mark(ierr.ErrInvariantViolation)
	}
	return nil
}

// NewGrant builds a Grant with the type's default priority, ready for
// Validate + persistence; callers override Priority explicitly when needed.
func NewGrant(subjectType types.GrantSubjectType, subjectID, featurePlanVersionID string, grantType types.GrantType, effectiveAt int64) *Grant {
	return &Grant{
		SubjectType:          subjectType,
		SubjectID:            subjectID,
		FeaturePlanVersionID: featurePlanVersionID,
		Type:                 grantType,
		Priority:             grantType.DefaultPriority(),
		EffectiveAt:          effectiveAt,
	}
}

// IsActive reports whether the grant is live (not logically deleted, past
// its effective date, and not yet expired) at asOf.
func (g *Grant) IsActive(asOf int64) bool {
	if g.Deleted {
		return false
	}
	if asOf < g.EffectiveAt {
		return false
	}
	if g.ExpiresAt != nil && asOf >= *g.ExpiresAt {
		return false
	}
	return true
}
