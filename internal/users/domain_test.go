package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("free")
	require.NoError(t, err)
	assert.Equal(t, TierFree, tier)

	tier, err = ParseTier("premium")
	require.NoError(t, err)
	assert.Equal(t, TierPremium, tier)

	for _, raw := range []string{"", "Free", "gold", "FREE "} {
		_, err := ParseTier(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestHasPassword(t *testing.T) {
	assert.True(t, (&User{PasswordHash: "$argon2id$..."}).HasPassword())
	assert.False(t, (&User{GoogleID: "goog-1", Provider: "google"}).HasPassword())

	var nilUser *User
	assert.False(t, nilUser.HasPassword())
}
