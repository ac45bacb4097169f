package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestManager(now *time.Time) *Manager {
	m := NewManager("test-secret", 15*time.Minute, 24*time.Hour)
	m.now = func() time.Time { return *now }
	return m
}

func TestAccessToken_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	raw, exp, err := m.GenerateAccessToken("user-1", "ana@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !exp.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", exp)
	}

	claims, err := m.VerifyAccessToken(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID() != "user-1" || claims.Email != "ana@example.com" || claims.Role != RoleAuthenticated {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAccessToken_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	raw, _, err := m.GenerateAccessToken("user-1", "ana@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := m.VerifyAccessToken(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenTypes_NotInterchangeable(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	access, _, _ := m.GenerateAccessToken("user-1", "ana@example.com")
	refresh, jti, _, _ := m.GenerateRefreshToken("user-1", "ana@example.com")

	if _, err := m.VerifyRefreshToken(access); err == nil {
		t.Fatalf("access token accepted as refresh token")
	}
	if _, err := m.VerifyAccessToken(refresh); err == nil {
		t.Fatalf("refresh token accepted as access token")
	}

	claims, err := m.VerifyRefreshToken(refresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if claims.ID != jti {
		t.Fatalf("expected jti %s, got %s", jti, claims.ID)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager(&now)
	raw, _, _ := m.GenerateAccessToken("user-1", "ana@example.com")

	other := NewManager("other-secret", time.Minute, time.Minute)
	other.now = m.now
	if _, err := other.VerifyAccessToken(raw); err == nil {
		t.Fatalf("token signed with another secret was accepted")
	}
}

func TestHashRefreshToken_Deterministic(t *testing.T) {
	m := NewManager("s", time.Minute, time.Minute)
	if m.HashRefreshToken("abc") != m.HashRefreshToken("abc") {
		t.Fatalf("hash must be deterministic")
	}
	if m.HashRefreshToken("abc") == m.HashRefreshToken("abd") {
		t.Fatalf("different tokens hashed equal")
	}
}

func TestForeignIssuerOrAudienceRejected(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	forge := func(iss, aud string) string {
		t.Helper()
		claims := Claims{
			Role:      RoleAuthenticated,
			TokenType: tokenAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    iss,
				Audience:  jwt.ClaimStrings{aud},
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return raw
	}

	if _, err := m.VerifyAccessToken(forge(Issuer, Audience)); err != nil {
		t.Fatalf("own issuer rejected: %v", err)
	}
	if _, err := m.VerifyAccessToken(forge("someone-else", Audience)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign issuer accepted: %v", err)
	}
	if _, err := m.VerifyAccessToken(forge(Issuer, "service_role")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign audience accepted: %v", err)
	}
}
