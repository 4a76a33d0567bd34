package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateToken(t *testing.T) {
	current := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:   "super-secret",
		Issuer:   "keygate",
		TokenTTL: time.Hour,
		Clock:    now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateToken(TokenInput{
		ClientID: "client-123",
		Scopes:   []string{"publish", "admin"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	require.Equal(t, "client-123", claims.ClientID)
	require.Equal(t, "keygate", claims.Issuer)
	require.True(t, claims.HasScope("publish"))
	require.True(t, claims.HasScope("admin"))
	require.False(t, claims.HasScope("validate"))
	require.True(t, claims.IssuedAt.Time.Equal(current))
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))
}

func TestValidateTokenInvalidSignature(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC) }

	minter, err := NewJWTService(JWTConfig{
		Secret:   "minter-secret",
		TokenTTL: time.Minute,
		Clock:    now,
	})
	require.NoError(t, err)

	token, err := minter.GenerateToken(TokenInput{ClientID: "client-123"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{
		Secret:   "other-secret",
		TokenTTL: time.Minute,
		Clock:    now,
	})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid))
}

func TestValidateTokenExpired(t *testing.T) {
	current := time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:   "secret",
		TokenTTL: time.Minute,
		Clock:    now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateToken(TokenInput{ClientID: "client-123"})
	require.NoError(t, err)

	// Move time forward beyond expiry.
	current = current.Add(2 * time.Minute)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 1, 1, 15, 0, 0, 0, time.UTC) }

	minter, err := NewJWTService(JWTConfig{
		Secret: "secret",
		Issuer: "someone-else",
		Clock:  now,
	})
	require.NoError(t, err)

	token, err := minter.GenerateToken(TokenInput{ClientID: "client-123"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{
		Secret: "secret",
		Issuer: "keygate",
		Clock:  now,
	})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	require.EqualError(t, err, "jwt: invalid issuer")
}
