package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

func TestPlan_Validate(t *testing.T) {
	assert.NoError(t, (&Plan{Slug: "pro"}).Validate())
	require.Error(t, (&Plan{}).Validate())
}

func validPlanVersion() *PlanVersion {
	return &PlanVersion{
		PlanID:        "plan_1",
		Interval:      types.IntervalMonth,
		IntervalCount: 1,
	}
}

func TestPlanVersion_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validPlanVersion().Validate())
	})

	t.Run("missing plan id", func(t *testing.T) {
		pv := validPlanVersion()
		pv.PlanID = ""
		require.Error(t, pv.Validate())
	})

	t.Run("non-positive interval count", func(t *testing.T) {
		pv := validPlanVersion()
		pv.IntervalCount = 0
		require.Error(t, pv.Validate())
	})
}

func TestPlanVersion_Publish(t *testing.T) {
	pv := validPlanVersion()
	require.NoError(t, pv.Publish())
	assert.Equal(t, PlanVersionStatusPublished, pv.Status)

	err := pv.Publish()
	require.Error(t, err)
	assert.True(t, ierr.IsInvalidOperation(err), "republishing an already-published version is rejected")
}

func validFeaturePlanVersion() *FeaturePlanVersion {
	return &FeaturePlanVersion{
		PlanVersionID:     "pv_1",
		FeatureID:         "feat_1",
		FeatureType:       types.FeatureTypeUsage,
		AggregationMethod: types.AggregationSum,
	}
}

func TestFeaturePlanVersion_Validate(t *testing.T) {
	t.Run("valid metered", func(t *testing.T) {
		assert.NoError(t, validFeaturePlanVersion().Validate())
	})

	t.Run("valid flat needs no aggregation", func(t *testing.T) {
		f := validFeaturePlanVersion()
		f.FeatureType = types.FeatureTypeFlat
		f.AggregationMethod = ""
		assert.NoError(t, f.Validate())
	})

	t.Run("metered feature without aggregation method", func(t *testing.T) {
		f := validFeaturePlanVersion()
		f.AggregationMethod = ""
		require.Error(t, f.Validate())
	})

	t.Run("missing feature id", func(t *testing.T) {
		f := validFeaturePlanVersion()
		f.FeatureID = ""
		require.Error(t, f.Validate())
	})
}
