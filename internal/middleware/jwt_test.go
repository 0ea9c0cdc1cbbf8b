package middleware

import (
	"strings"
	"testing"
	"time"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:    "test-secret",
		Issuer:    "formsense",
		ExpiresIn: time.Hour,
	}
}

func testUser() *domain.User {
	return &domain.User{ID: "u1", Email: "a@example.com", Name: "Ann"}
}

func TestJWTRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateJWT(testUser(), cfg)
	require.NoError(t, err)

	claims, err := validateJWT(token, cfg.Secret, cfg.Issuer)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "Ann", claims.Name)
	assert.Equal(t, "formsense", claims.Issuer)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateJWT(testUser(), cfg)
	require.NoError(t, err)

	_, err = validateJWT(token, "other-secret", cfg.Issuer)
	assert.Error(t, err)
}

func TestJWTRejectsTamperedClaims(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateJWT(testUser(), cfg)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	_, err = validateJWT(tampered, cfg.Secret, cfg.Issuer)
	assert.Error(t, err)
}

func TestJWTRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpiresIn = -time.Minute
	token, err := GenerateJWT(testUser(), cfg)
	require.NoError(t, err)

	_, err = validateJWT(token, cfg.Secret, cfg.Issuer)
	assert.ErrorContains(t, err, "expired")
}

func TestJWTRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateJWT(testUser(), cfg)
	require.NoError(t, err)

	_, err = validateJWT(token, cfg.Secret, "someone-else")
	assert.ErrorContains(t, err, "issuer")
}

func TestJWTRejectsMalformed(t *testing.T) {
	cfg := testJWTConfig()
	_, err := validateJWT("not-a-token", cfg.Secret, cfg.Issuer)
	assert.Error(t, err)
}
