package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokensRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens, err := NewTokens("secret", time.Hour, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	signed, exp, err := tokens.Issue(User{ID: "u1", Email: "a@b.c", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	claims, err := tokens.Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != RoleAdmin || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokensRejectExpiredAndForeign(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tokens, _ := NewTokens("secret", time.Minute, WithTokenClock(clock))
	signed, _, err := tokens.Issue(User{ID: "u1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := tokens.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	other, _ := NewTokens("other-secret", time.Minute, WithTokenClock(clock))
	if _, err := other.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign signature rejected, got %v", err)
	}
	issuer, _ := NewTokens("secret", time.Minute, WithTokenClock(clock), WithTokenIssuer("someone-else"))
	if _, err := issuer.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch rejected, got %v", err)
	}
}

func TestNewTokensValidation(t *testing.T) {
	if _, err := NewTokens(" ", time.Hour); err == nil {
		t.Fatalf("expected empty secret error")
	}
	if _, err := NewTokens("s", 0); err == nil {
		t.Fatalf("expected ttl error")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, salt, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, salt, "correct horse") {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword(hash, salt, "wrong") {
		t.Fatalf("wrong password verified")
	}
	if VerifyPassword("", salt, "correct horse") || VerifyPassword(hash, "!!", "correct horse") {
		t.Fatalf("malformed stored values must not verify")
	}
	_, salt2, _ := HashPassword("correct horse")
	if salt == salt2 {
		t.Fatalf("expected fresh salt per hash")
	}
}
