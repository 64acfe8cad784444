package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	m := NewManager("test-secret")
	userID := uuid.New()

	token, err := m.Generate(userID, "Alice", RoleAdmin, time.Hour)
	require.NoError(t, err)

	ident, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, ident.UserID)
	assert.Equal(t, "Alice", ident.Name)
	assert.Equal(t, RoleAdmin, ident.Role)
	assert.True(t, ident.IsAdmin())
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a").Generate(uuid.New(), "Alice", RoleResident, time.Hour)
	require.NoError(t, err)

	_, err = NewManager("secret-b").Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret")
	token, err := m.Generate(uuid.New(), "Alice", RoleResident, -time.Minute)
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret")
	_, err := m.Verify("not.a.token")
	assert.Error(t, err)
}

func TestVerifyNormalizesUnknownRoles(t *testing.T) {
	m := NewManager("test-secret")

	for _, role := range []string{"", "resident", "superuser", "ADMIN"} {
		token, err := m.Generate(uuid.New(), "Bob", role, time.Hour)
		require.NoError(t, err)

		ident, err := m.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, RoleResident, ident.Role, "role %q", role)
		assert.False(t, ident.IsAdmin())
	}
}

func TestFromBearer(t *testing.T) {
	token, ok := FromBearer("Bearer abc123")
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)

	_, ok = FromBearer("abc123")
	assert.False(t, ok)

	_, ok = FromBearer("")
	assert.False(t, ok)
}
