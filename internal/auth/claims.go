package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultTokenTTL applies when GenerateAccessToken is given a zero TTL.
const defaultTokenTTL = 15 * time.Minute

// CustomClaims extends JWT standard claims with Gray Logic-specific fields.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role      Role   `json:"role"`
	DeviceID  string `json:"device_id,omitempty"`
	SessionID string `json:"sid"`
}

// GenerateAccessToken creates a signed HS256 token for an identity.
func GenerateAccessToken(id Identity, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	sid := id.SessionID
	if sid == "" {
		sid = uuid.NewString()
	}
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role:      id.Role,
		SessionID: sid,
	}
	if id.UserID == "" {
		claims.DeviceID = id.DeviceID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a JWT access token, returning the custom claims.
// It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: %w %q", ErrTokenInvalid, ErrUnknownRole, claims.Role)
	}

	return claims, nil
}

// Identity converts verified claims to an Identity.
func (c *CustomClaims) Identity() Identity {
	id := Identity{Role: c.Role, SessionID: c.SessionID}
	if c.DeviceID != "" {
		id.DeviceID = c.DeviceID
	} else {
		id.UserID = c.Subject
	}
	return id
}
