package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken(Identity{UserID: "usr-001", Role: RoleAdmin}, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.Subject != "usr-001" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "usr-001")
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.SessionID == "" || claims.ID == "" {
		t.Error("SessionID and JTI should be set")
	}

	id := claims.Identity()
	if id.UserID != "usr-001" || id.DeviceID != "" {
		t.Errorf("Identity() = %+v", id)
	}
}

func TestDeviceIdentityRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken(Identity{DeviceID: "meter-7", Role: RoleDevice}, testSecret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	id := claims.Identity()
	if id.DeviceID != "meter-7" || id.UserID != "" || id.Role != RoleDevice {
		t.Errorf("Identity() = %+v", id)
	}
	if id.Subject() != "meter-7" {
		t.Errorf("Subject() = %q", id.Subject())
	}
}

func TestParseToken_Failures(t *testing.T) {
	valid, err := GenerateAccessToken(Identity{UserID: "usr-001", Role: RoleUser}, "correct-secret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr-001",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: RoleUser,
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001"},
		Role:             "owner",
	})
	badRoleToken, err := badRole.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
		want   error
	}{
		{"garbage", "not-a-valid-jwt", testSecret, ErrTokenInvalid},
		{"wrong secret", valid, "wrong-secret", ErrTokenInvalid},
		{"expired", expiredToken, testSecret, ErrTokenExpired},
		{"unknown role", badRoleToken, testSecret, ErrUnknownRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); !errors.Is(err, tt.want) {
				t.Errorf("ParseToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestJWTAuthenticator(t *testing.T) {
	token, err := GenerateAccessToken(Identity{UserID: "usr-002", Role: RoleUser}, testSecret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	a := NewJWTAuthenticator(testSecret, "")
	id, err := a.Authenticate(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.UserID != "usr-002" || id.Role != RoleUser {
		t.Errorf("identity = %+v", id)
	}

	if _, err := a.Authenticate(context.Background(), ""); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty token error = %v", err)
	}

	strict := NewJWTAuthenticator(testSecret, "graylogic-accounts")
	if _, err := strict.Authenticate(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("issuer mismatch error = %v", err)
	}
}
