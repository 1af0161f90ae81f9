package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	service := NewJWTService("test-secret", time.Hour)

	token, expiresAt, err := service.GenerateToken("user-123", "admin@example.com", RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestValidateToken_Expired(t *testing.T) {
	service := NewJWTService("test-secret", -time.Hour)

	token, _, err := service.GenerateToken("user-123", "admin@example.com", RoleAdmin)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	service := NewJWTService("test-secret", time.Hour)
	other := NewJWTService("other-secret", time.Hour)

	token, _, err := service.GenerateToken("user-123", "admin@example.com", RoleAdmin)
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	service := NewJWTService("test-secret", time.Hour)
	_, err := service.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, (&Claims{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&Claims{Role: "customer"}).IsAdmin())
	assert.False(t, (&Claims{}).IsAdmin())

	var nilClaims *Claims
	assert.False(t, nilClaims.IsAdmin())
}
