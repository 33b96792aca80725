package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rimsurge/identity-service/internal/core/domain"
)

// ErrInvalidAccessToken covers every way an access token can fail to parse:
// malformed, bad signature, expired, wrong purpose. Callers get a single
// sentinel so responses cannot leak which check rejected the token.
var ErrInvalidAccessToken = errors.New("jwt: invalid access token")

const accessTokenPurpose = "access"

// AccessTokenClaims carries the session identity embedded in access tokens.
type AccessTokenClaims struct {
	UserID     int64  `json:"user_id"`
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type"`
	Purpose    string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer constructs a TokenIssuer for the shared secret.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt: signing secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("jwt: access token ttl must be positive")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured access token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// IssueAccessToken signs an access token for the session at the given instant.
func (t *TokenIssuer) IssueAccessToken(userID int64, deviceID, deviceType string, now time.Time) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("jwt: user id is required")
	}

	now = now.UTC()
	claims := &AccessTokenClaims{
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceType: deviceType,
		Purpose:    accessTokenPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// ParseAccessToken validates the token and returns the embedded session
// claims. Any failure maps to ErrInvalidAccessToken.
func (t *TokenIssuer) ParseAccessToken(raw string) (*domain.SessionClaims, error) {
	if raw == "" {
		return nil, ErrInvalidAccessToken
	}

	var claims AccessTokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("jwt: unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	if claims.Purpose != accessTokenPurpose || claims.UserID <= 0 {
		return nil, ErrInvalidAccessToken
	}

	out := &domain.SessionClaims{
		UserID:     claims.UserID,
		DeviceID:   claims.DeviceID,
		DeviceType: claims.DeviceType,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	return out, nil
}
