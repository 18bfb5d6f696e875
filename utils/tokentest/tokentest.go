// Package tokentest signs bearer tokens for tests that drive authenticated routes.
package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"vibeconnect/utils"
)

// Secret is the signing key test servers hand to utils.NewTokenVerifier.
const Secret = "test-secret"

// Sign returns an HS256 token for userID that expires in ttl.
func Sign(t testing.TB, secret, userID string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := utils.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}
