package types

import (
	"github.com/samber/lo"
	ierr "github.com/usagebilling/core/internal/ierr"
)

// GrantType distinguishes why an entitlement grant exists; its default
// priority determines ordering in GrantSnapshot's merge when several grants
// cover the same feature.
type GrantType string

const (
	GrantTypeSubscription GrantType = "subscription"
	GrantTypeTrial        GrantType = "trial"
	GrantTypePromotion    GrantType = "promotion"
	GrantTypeManual       GrantType = "manual"
)

func (g GrantType) Validate() error {
	allowed := []GrantType{GrantTypeSubscription, GrantTypeTrial, GrantTypePromotion, GrantTypeManual}
	if !lo.Contains(allowed, g) {
		return ierr.NewError("invalid grant type").
			WithHint("Invalid grant type").
			WithReportableDetails(map[string]any{
				"type":           g,
				"allowed_values": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DefaultPriority returns the priority a grant of this type is assigned
// absent an explicit override.
func (g GrantType) DefaultPriority() int {
	switch g {
	case GrantTypeSubscription:
		return 10
	case GrantTypeTrial:
		return 80
	case GrantTypePromotion:
		return 90
	case GrantTypeManual:
		return 100
	default:
		return 0
	}
}

// GrantSubjectType is the kind of entity a Grant is attached to.
type GrantSubjectType string

const (
	GrantSubjectTypeCustomer     GrantSubjectType = "customer"
	GrantSubjectTypeSubscription GrantSubjectType = "subscription"
)

func (s GrantSubjectType) Validate() error {
	allowed := []GrantSubjectType{GrantSubjectTypeCustomer, GrantSubjectTypeSubscription}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid grant subject type").Mark(ierr.ErrValidation)
	}
	return nil
}
