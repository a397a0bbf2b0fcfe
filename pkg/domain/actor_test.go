package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Owner ")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, r)

	_, err = ParseRole("root")
	assert.Error(t, err)
}

func TestActorString(t *testing.T) {
	assert.Equal(t, "anonymous", Actor{}.String())
	assert.Equal(t, "moderator:42", Actor{ID: "42", Role: RoleModerator}.String())
	assert.True(t, Actor{ID: "o", Role: RoleOwner}.IsOwner())
}

func TestActorAuditID(t *testing.T) {
	assert.Equal(t, "anonymous", Actor{}.AuditID())
	assert.Equal(t, "42", Actor{ID: "42", Role: RoleModerator}.AuditID())
}
