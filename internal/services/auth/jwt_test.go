package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService(JWTConfig{SecretKey: "s3cret"})

	token, err := svc.GenerateToken("batch-job", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "batch-job", claims.Client)
	assert.Equal(t, "batch-job", claims.Subject)
	assert.Equal(t, defaultIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService(JWTConfig{SecretKey: "s3cret"})

	expired, err := svc.GenerateToken("c", -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewJWTService(JWTConfig{SecretKey: "other"}).GenerateToken("c", time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewJWTService(JWTConfig{SecretKey: "s3cret", Issuer: "someone-else"}).GenerateToken("c", time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: defaultIssuer},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	var tests = []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong key", otherKey},
		{"wrong issuer", otherIssuer},
		{"no expiry", noExpiry},
		{"garbage", "not-a-jwt"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestDisabledService(t *testing.T) {
	svc := NewJWTService(JWTConfig{})
	assert.False(t, svc.Enabled())

	_, err := svc.GenerateToken("c", time.Hour)
	assert.ErrorIs(t, err, ErrTokenDisabled)

	_, err = svc.ValidateToken("anything")
	assert.ErrorIs(t, err, ErrTokenDisabled)
}
