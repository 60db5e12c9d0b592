package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "audioworker"

var ErrTokenDisabled = errors.New("JWT authentication is not configured")

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	jwt.RegisteredClaims
	Client string `json:"client,omitempty"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	SecretKey string
	Issuer    string
}

// JWTService signs and validates HS256 bearer tokens
type JWTService struct {
	config    JWTConfig
	secretKey []byte
}

// NewJWTService creates a new JWT service
func NewJWTService(config JWTConfig) *JWTService {
	if config.Issuer == "" {
		config.Issuer = defaultIssuer
	}
	return &JWTService{
		config:    config,
		secretKey: []byte(config.SecretKey),
	}
}

// Enabled reports whether a signing secret is configured.
func (j *JWTService) Enabled() bool {
	return j != nil && len(j.secretKey) > 0
}

// GenerateToken creates a token for client valid for duration.
func (j *JWTService) GenerateToken(client string, duration time.Duration) (string, error) {
	if !j.Enabled() {
		return "", ErrTokenDisabled
	}

	now := time.Now()
	jti, err := j.generateJTI()
	if err != nil {
		return "", fmt.Errorf("failed to generate JTI: %w", err)
	}

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   client,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			NotBefore: jwt.NewNumericDate(now),
		},
		Client: client,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates and parses a JWT token
func (j *JWTService) ValidateToken(tokenString string) (*JWTClaims, error) {
	if !j.Enabled() {
		return nil, ErrTokenDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	},
		jwt.WithIssuer(j.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// generateJTI generates a unique JWT ID
func (j *JWTService) generateJTI() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
