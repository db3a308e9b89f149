package subscription

import (
	"context"
)

// GrantRepository defines the interface for grant persistence. Grants are
// append-only: Supersede inserts the replacement and marks the prior grant
// deleted in one call so Entitlement.Version transitions atomically.
type GrantRepository interface {
	Create(ctx context.Context, grant *Grant) error
	Get(ctx context.Context, id string) (*Grant, error)
	ListActiveForFeature(ctx context.Context, subjectType, subjectID, featurePlanVersionID string) ([]*Grant, error)
	ListBySubject(ctx context.Context, subjectType, subjectID string) ([]*Grant, error)
	Supersede(ctx context.Context, oldGrantID string, replacement *Grant) error
	Delete(ctx context.Context, id string) error
}
