package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizer(t *testing.T) {
	a := NewAuthorizer(NewService())

	assert.NoError(t, a.RequireAdmin("admin"))
	assert.ErrorIs(t, a.RequireAdmin("user"), ErrInsufficientRole)
	assert.ErrorIs(t, a.RequireAdmin(""), ErrInsufficientRole)

	assert.NoError(t, a.RequireRole("user", "user"))
	assert.ErrorIs(t, a.RequireRole("superuser", "superuser"), ErrInsufficientRole)

	assert.NoError(t, a.RequireOwnerOrAdmin("admin", "a1", "someone-else"))
	assert.NoError(t, a.RequireOwnerOrAdmin("user", "u1", "u1"))
	assert.ErrorIs(t, a.RequireOwnerOrAdmin("user", "u1", "u2"), ErrNotOwner)
	assert.ErrorIs(t, a.RequireOwnerOrAdmin("user", "", ""), ErrNotOwner)
}

func TestService_Roles(t *testing.T) {
	s := NewService()
	assert.Equal(t, []string{"admin", "user"}, s.GetValidRoles())
	assert.True(t, s.IsValidRole("user"))
	assert.False(t, s.IsValidRole("device"))
}
