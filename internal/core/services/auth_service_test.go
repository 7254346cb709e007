package services

import (
	"context"
	"testing"
	"time"

	"telemeet/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthServiceMintAndResolve(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)

	token, err := svc.Mint("user-1", "Dr. Adams", domain.RoleHost)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-1"), identity.UserID)
	assert.Equal(t, "Dr. Adams", identity.Name)
	assert.Equal(t, domain.RoleHost, identity.Role)
}

func TestAuthServiceRejectsGarbage(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)

	_, err := svc.Resolve(context.Background(), "not-a-token")
	require.ErrorIs(t, err, domain.ErrAuthenticationFailure)
}

func TestAuthServiceRejectsWrongSecret(t *testing.T) {
	minter := NewAuthService("secret-a", time.Hour)
	verifier := NewAuthService("secret-b", time.Hour)

	token, err := minter.Mint("user-1", "Alice", domain.RoleGuest)
	require.NoError(t, err)

	_, err = verifier.Resolve(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrAuthenticationFailure)
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	svc := NewAuthService("test-secret", -time.Minute)

	token, err := svc.Mint("user-1", "Alice", domain.RoleGuest)
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), token)
	require.ErrorIs(t, err, domain.ErrAuthenticationFailure)
}
