package types

import (
	"fmt"

	"github.com/samber/lo"
)

// FeatureType determines how a FeaturePlanVersion is priced and metered.
type FeatureType string

const (
	FeatureTypeFlat    FeatureType = "flat"
	FeatureTypeTier    FeatureType = "tier"
	FeatureTypeUsage   FeatureType = "usage"
	FeatureTypePackage FeatureType = "package"
)

func (f FeatureType) String() string {
	return string(f)
}

func (f FeatureType) Validate() error {
	if f == "" {
		return nil
	}

	allowed := []FeatureType{
		FeatureTypeFlat,
		FeatureTypeTier,
		FeatureTypeUsage,
		FeatureTypePackage,
	}
	if !lo.Contains(allowed, f) {
		return fmt.Errorf("invalid feature type: %s", f)
	}
	return nil
}

// IsMetered reports whether the feature type consumes usage events at all;
// flat features are billed by a fixed unit count instead.
func (f FeatureType) IsMetered() bool {
	return f == FeatureTypeUsage || f == FeatureTypeTier || f == FeatureTypePackage
}
