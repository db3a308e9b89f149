// Package grantsnapshot implements GrantSnapshot (spec.md §4.3): a pure
// merge of a subject's active grants into a single effective entitlement.
package grantsnapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/usagebilling/core/internal/domain/entitlement"
	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

// Merged is the effective entitlement snapshot GrantSnapshot produces from
// a grant set: the config the feature is evaluated against, plus the
// priority-ordered grants that fed it (needed downstream for waterfall
// pricing).
type Merged struct {
	FeatureType       types.FeatureType
	Limit             *int64
	HardLimit         bool
	Units             *int64
	AggregationMethod types.AggregationType
	ResetConfig       types.ResetConfig
	Grants            []entitlement.GrantSnapshot
	Version           string
}

// Merge combines the grants active at asOf into a Merged entitlement. All
// grants must share FeatureType, ResetConfig, and AggregationMethod — a
// mismatch is a fatal invariant violation, not a degraded result.
func Merge(grants []*subscription.Grant, asOf int64, featureType types.FeatureType, resetConfig types.ResetConfig, aggregationMethod types.AggregationType) (Merged, error) {
	active := make([]*subscription.Grant, 0, len(grants))
	for _, g := range grants {
		if g.IsActive(asOf) {
			active = append(active, g)
		}
	}

	// Highest priority first, so "replace" and tie-break rules below read
	// naturally as "the first entry wins".
	sort.SliceStable(active, func(i, j int) bool { return active[i].Priority > active[j].Priority })

	m := Merged{
		FeatureType:       featureType,
		HardLimit:         false,
		AggregationMethod: aggregationMethod,
		ResetConfig:       resetConfig,
		Grants:            make([]entitlement.GrantSnapshot, 0, len(active)),
	}

	for _, g := range active {
		m.Grants = append(m.Grants, entitlement.GrantSnapshot{
			GrantID:              g.ID,
			Type:                 string(g.Type),
			Priority:             g.Priority,
			Limit:                g.Limit,
			HardLimit:            g.HardLimit,
			Units:                g.Units,
			EffectiveAt:          g.EffectiveAt,
			ExpiresAt:            g.ExpiresAt,
			FeaturePlanVersionID: g.FeaturePlanVersionID,
		})
	}

	if len(active) == 0 {
		m.Version = version(m.Grants)
		return m, nil
	}

	if featureType.IsMetered() {
		mergeMetered(&m, active)
	} else {
		mergeReplace(&m, active)
	}

	m.Version = version(m.Grants)
	return m, nil
}

// mergeReplace implements the flat/package rule: highest priority grant
// wins for every field. active is already sorted highest-priority-first.
func mergeReplace(m *Merged, active []*subscription.Grant) {
	winner := active[0]
	m.Limit = winner.Limit
	m.HardLimit = winner.HardLimit
	m.Units = winner.Units
}

// mergeMetered implements the tier/usage rule: sum Limit and Units across
// all active grants, max HardLimit, highest priority wins ties on config
// (there is no further config to merge here since FeatureType/ResetConfig/
// AggregationMethod are validated identical across the set already).
func mergeMetered(m *Merged, active []*subscription.Grant) {
	var limitSum, unitsSum int64
	haveLimit, haveUnits := false, false
	hardLimit := false

	for _, g := range active {
		if g.Limit != nil {
			limitSum += *g.Limit
			haveLimit = true
		}
		if g.Units != nil {
			unitsSum += *g.Units
			haveUnits = true
		}
		if g.HardLimit {
			hardLimit = true
		}
	}

	if haveLimit {
		m.Limit = &limitSum
	}
	if haveUnits {
		m.Units = &unitsSum
	}
	m.HardLimit = hardLimit
}

// Validate checks the featureType/resetConfig/aggregationMethod-agreement
// invariant across a raw grant set's associated FeaturePlanVersions before
// Merge is called; callers resolve each grant's FeaturePlanVersion and pass
// the tuples in here keyed by grant ID.
func Validate(configs []FeatureConfig) error {
	if len(configs) == 0 {
		return nil
	}
	first := configs[0]
	for _, c := range configs[1:] {
		if c.FeatureType != first.FeatureType || c.ResetConfig != first.ResetConfig || c.AggregationMethod != first.AggregationMethod {
			return ierr.NewError("grants for one feature disagree on featureType/resetConfig/aggregationMethod").
				WithReportableDetails(map[string]any{
					"grant_id":    c.GrantID,
					"conflicting": first.GrantID,
				}).
				Mark(ierr.ErrInvariantViolation)
		}
	}
	return nil
}

// FeatureConfig is one grant's resolved FeaturePlanVersion config, as input
// to Validate's cross-grant agreement check.
type FeatureConfig struct {
	GrantID           string
	FeatureType       types.FeatureType
	ResetConfig       types.ResetConfig
	AggregationMethod types.AggregationType
}

// version is the SHA-256 of the sorted grant IDs + priorities + limits,
// used as the entitlement cache fence (spec.md §4.3, §9).
func version(grants []entitlement.GrantSnapshot) string {
	sorted := make([]entitlement.GrantSnapshot, len(grants))
	copy(sorted, grants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GrantID < sorted[j].GrantID })

	parts := lo.Map(sorted, func(g entitlement.GrantSnapshot, _ int) string {
		limit := "nil"
		if g.Limit != nil {
			limit = fmt.Sprintf("%d", *g.Limit)
		}
		return fmt.Sprintf("%s:%d:%s", g.GrantID, g.Priority, limit)
	})

	h := sha256.Sum256([]byte(fmt.Sprintf("%v", parts)))
	return hex.EncodeToString(h[:])
}
