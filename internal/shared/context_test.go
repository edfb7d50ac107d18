package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityContextRoundTrip(t *testing.T) {
	base := context.Background()
	assert.Nil(t, IdentityFromContext(base))

	id := &Identity{UserID: "user-1", Email: "user@memora.test", Tier: "free", Roles: []string{"user"}}
	ctx := ContextWithIdentity(base, id)

	got := IdentityFromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Nil(t, IdentityFromContext(base))
}

func TestHasRole(t *testing.T) {
	id := &Identity{Roles: []string{"user", "admin"}}
	assert.True(t, id.HasRole("admin"))
	assert.False(t, id.HasRole("auditor"))

	var nilIdentity *Identity
	assert.False(t, nilIdentity.HasRole("user"))
}
