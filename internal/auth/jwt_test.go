package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func newTestTokenService() *TokenService {
	return NewTokenService(testSecret, 15*time.Minute, 7*24*time.Hour)
}

func TestTokenService_IssuePair(t *testing.T) {
	service := newTestTokenService()

	pair, err := service.IssuePair("recycler-1", "shop@example.com", "recycler")

	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.AccessExpiresAt, 5*time.Second)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), pair.RefreshExpiresAt, 5*time.Second)
}

func TestTokenService_VerifyAccess(t *testing.T) {
	service := newTestTokenService()
	pair, err := service.IssuePair("user-1", "user@example.com", "user")
	require.NoError(t, err)

	claims, err := service.VerifyAccess(pair.AccessToken)

	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.AccountID)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestTokenService_VerifyRefresh(t *testing.T) {
	service := newTestTokenService()
	pair, err := service.IssuePair("user-1", "user@example.com", "user")
	require.NoError(t, err)

	accountID, err := service.VerifyRefresh(pair.RefreshToken)

	require.NoError(t, err)
	assert.Equal(t, "user-1", accountID)
}

func TestTokenService_TokenTypesAreNotInterchangeable(t *testing.T) {
	service := newTestTokenService()
	pair, err := service.IssuePair("user-1", "user@example.com", "user")
	require.NoError(t, err)

	_, err = service.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = service.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	service := newTestTokenService()
	service.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := service.IssuePair("user-1", "user@example.com", "user")
	require.NoError(t, err)
	service.now = time.Now

	_, err = service.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenService_Rejects(t *testing.T) {
	service := newTestTokenService()
	other := NewTokenService("another-secret-key-that-is-long-enough", time.Minute, time.Hour)
	foreign, err := other.IssuePair("user-1", "user@example.com", "user")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		AccountID: "user-1",
		TokenType: tokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: "user-1",
		TokenType: tokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":         "not-a-jwt",
		"empty":           "",
		"wrong signature": foreign.AccessToken,
		"alg none":        noneToken,
		"wrong issuer":    wrongIssuer,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := service.VerifyAccess(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
