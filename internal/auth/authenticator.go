package auth

import (
	"context"
	"fmt"
	"strings"
)

// Authenticator verifies a bearer token and returns the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// JWTAuthenticator verifies HS256 tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret string
	issuer string
}

// NewJWTAuthenticator creates an authenticator. A non-empty issuer must
// match the token's iss claim.
func NewJWTAuthenticator(secret, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, issuer: issuer}
}

// Authenticate verifies token. A "Bearer " prefix is accepted.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	claims, err := ParseToken(token, a.secret)
	if err != nil {
		return Identity{}, err
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return Identity{}, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}
	return claims.Identity(), nil
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (Identity, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}
