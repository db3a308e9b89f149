package creditgrant

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

func validCreditGrant() *CreditGrant {
	return &CreditGrant{
		CustomerID:  "cust_1",
		Currency:    "usd",
		TotalAmount: decimal.NewFromInt(100),
		AmountUsed:  decimal.Zero,
		Reason:      types.CreditGrantReasonManual,
	}
}

func TestCreditGrant_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validCreditGrant().Validate())
	})

	t.Run("negative total amount", func(t *testing.T) {
		c := validCreditGrant()
		c.TotalAmount = decimal.NewFromInt(-1)
		require.Error(t, c.Validate())
	})

	t.Run("amount used exceeds total", func(t *testing.T) {
		c := validCreditGrant()
		c.AmountUsed = decimal.NewFromInt(101)
		err := c.Validate()
		require.Error(t, err)
		assert.True(t, ierr.IsInvariantViolation(err))
	})

	t.Run("missing currency", func(t *testing.T) {
		c := validCreditGrant()
		c.Currency = ""
		require.Error(t, c.Validate())
	})
}

func TestCreditGrant_Remaining(t *testing.T) {
	c := validCreditGrant()
	c.AmountUsed = decimal.NewFromInt(30)
	assert.True(t, c.Remaining().Equal(decimal.NewFromInt(70)))
}

func TestCreditGrant_RecomputeActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("active when unused and unexpired", func(t *testing.T) {
		c := validCreditGrant()
		c.RecomputeActive(now)
		assert.True(t, c.Active)
	})

	t.Run("inactive when fully used", func(t *testing.T) {
		c := validCreditGrant()
		c.AmountUsed = c.TotalAmount
		c.RecomputeActive(now)
		assert.False(t, c.Active)
	})

	t.Run("inactive when expired", func(t *testing.T) {
		c := validCreditGrant()
		expired := now.Add(-time.Hour)
		c.ExpiresAt = &expired
		c.RecomputeActive(now)
		assert.False(t, c.Active)
	})
}

func TestCreditGrant_Apply(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("partial application", func(t *testing.T) {
		c := validCreditGrant()
		applied := c.Apply(decimal.NewFromInt(40), now)
		assert.True(t, applied.Equal(decimal.NewFromInt(40)))
		assert.True(t, c.AmountUsed.Equal(decimal.NewFromInt(40)))
		assert.True(t, c.Active)
	})

	t.Run("caps at remaining balance", func(t *testing.T) {
		c := validCreditGrant()
		c.AmountUsed = decimal.NewFromInt(80)
		applied := c.Apply(decimal.NewFromInt(50), now)
		assert.True(t, applied.Equal(decimal.NewFromInt(20)), "only the remaining 20 should apply")
		assert.True(t, c.AmountUsed.Equal(c.TotalAmount))
		assert.False(t, c.Active, "fully consumed grant goes inactive")
	})
}
