package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

func validSubscription() *Subscription {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Subscription{
		CustomerID:          "cust_1",
		PlanSlug:            "pro",
		Status:              types.SubscriptionStatusActive,
		CurrentCycleStartAt: start,
		CurrentCycleEndAt:   start.AddDate(0, 1, 0),
	}
}

func TestSubscription_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validSubscription().Validate())
	})

	t.Run("missing customer id", func(t *testing.T) {
		s := validSubscription()
		s.CustomerID = ""
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	})

	t.Run("missing plan slug", func(t *testing.T) {
		s := validSubscription()
		s.PlanSlug = ""
		require.Error(t, s.Validate())
	})

	t.Run("cycle end before start", func(t *testing.T) {
		s := validSubscription()
		s.CurrentCycleEndAt = s.CurrentCycleStartAt.Add(-time.Hour)
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, ierr.IsInvariantViolation(err))
	})
}

func TestSubscription_RecomputeActive(t *testing.T) {
	s := validSubscription()

	s.Status = types.SubscriptionStatusActive
	s.RecomputeActive()
	assert.True(t, s.Active)

	s.Status = types.SubscriptionStatusCanceled
	s.RecomputeActive()
	assert.False(t, s.Active)

	s.Status = types.SubscriptionStatusExpired
	s.RecomputeActive()
	assert.False(t, s.Active)
}
