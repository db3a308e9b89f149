package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionPhase_Validate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	t.Run("valid open-ended", func(t *testing.T) {
		p := &SubscriptionPhase{SubscriptionID: "sub_1", PlanVersionID: "pv_1", StartAt: start}
		assert.NoError(t, p.Validate())
	})

	t.Run("end not after start", func(t *testing.T) {
		p := &SubscriptionPhase{SubscriptionID: "sub_1", PlanVersionID: "pv_1", StartAt: start, EndAt: &start}
		require.Error(t, p.Validate())
	})

	t.Run("trial before start", func(t *testing.T) {
		before := start.Add(-time.Hour)
		p := &SubscriptionPhase{SubscriptionID: "sub_1", PlanVersionID: "pv_1", StartAt: start, EndAt: &end, TrialEndsAt: &before}
		require.Error(t, p.Validate())
	})

	t.Run("trial not before end", func(t *testing.T) {
		p := &SubscriptionPhase{SubscriptionID: "sub_1", PlanVersionID: "pv_1", StartAt: start, EndAt: &end, TrialEndsAt: &end}
		require.Error(t, p.Validate())
	})
}

func TestSubscriptionPhase_IsActive(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	p := &SubscriptionPhase{StartAt: start, EndAt: &end}

	assert.False(t, p.IsActive(start.Add(-time.Second)))
	assert.True(t, p.IsActive(start))
	assert.True(t, p.IsActive(end.Add(-time.Second)))
	assert.False(t, p.IsActive(end))
}

func TestSubscriptionPhase_IsActive_OpenEnded(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &SubscriptionPhase{StartAt: start}
	assert.True(t, p.IsActive(start.AddDate(10, 0, 0)))
}

func TestSubscriptionPhase_Overlaps(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mid := start.AddDate(0, 1, 0)
	end := mid.AddDate(0, 1, 0)

	a := &SubscriptionPhase{StartAt: start, EndAt: &mid}
	b := &SubscriptionPhase{StartAt: mid, EndAt: &end}
	assert.False(t, a.Overlaps(b), "adjacent half-open windows must not overlap")

	c := &SubscriptionPhase{StartAt: start.AddDate(0, 0, 15), EndAt: &end}
	assert.True(t, a.Overlaps(c))
}
