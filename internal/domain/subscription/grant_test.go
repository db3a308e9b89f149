package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/types"
)

func TestNewGrant_UsesDefaultPriority(t *testing.T) {
	g := NewGrant(types.GrantSubjectTypeCustomer, "cust_1", "fpv_1", types.GrantTypeTrial, 1000)
	assert.Equal(t, types.GrantTypeTrial.DefaultPriority(), g.Priority)
	assert.Equal(t, "cust_1", g.SubjectID)
	assert.Equal(t, int64(1000), g.EffectiveAt)
}

func TestGrant_Validate(t *testing.T) {
	base := NewGrant(types.GrantSubjectTypeCustomer, "cust_1", "fpv_1", types.GrantTypeManual, 1000)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base.Validate())
	})

	t.Run("missing subject id", func(t *testing.T) {
		g := *base
		g.SubjectID = ""
		require.Error(t, g.Validate())
	})

	t.Run("expires before effective", func(t *testing.T) {
		g := *base
		expires := int64(500)
		g.ExpiresAt = &expires
		err := g.Validate()
		require.Error(t, err)
		assert.True(t, ierr.IsInvariantViolation(err))
	})
}

func TestGrant_IsActive(t *testing.T) {
	expires := int64(2000)
	g := &Grant{EffectiveAt: 1000, ExpiresAt: &expires}

	assert.False(t, g.IsActive(999), "before effective date")
	assert.True(t, g.IsActive(1000), "at effective date")
	assert.True(t, g.IsActive(1999), "before expiry")
	assert.False(t, g.IsActive(2000), "at expiry")

	g.Deleted = true
	assert.False(t, g.IsActive(1500), "logically deleted")
}
