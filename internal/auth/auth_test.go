package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"dipdive.org/internal/rbac"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash equals plaintext")
	}
	if err := VerifyPassword(hash, "correct horse battery"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	iss, err := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, exp, err := iss.GenerateToken("acc-42", "ada@dipdive.local")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiration, got %v", exp)
	}

	claims, err := iss.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "acc-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Email != "ada@dipdive.local" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	iss, err := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"),
		WithTTL(time.Minute),
		WithClock(func() time.Time { return past }))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	token, _, err := iss.GenerateToken("acc-42", "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	live, err := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	if _, err := live.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	a, _ := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"))
	b, _ := NewTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"))

	token, _, err := a.GenerateToken("acc-42", "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := b.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("expected no principal on empty context")
	}
	if got := AccountIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty account id, got %q", got)
	}

	p := NewPrincipal(rbac.Account{ID: "acc-1"}, []rbac.Permission{
		{Name: "dives:read"},
		{Name: "dives:create"},
	})
	ctx = ContextWithPrincipal(ctx, p)

	got, ok := PrincipalFromContext(ctx)
	if !ok || got.Account.ID != "acc-1" {
		t.Fatalf("principal round trip failed: %+v ok=%v", got, ok)
	}
	if !got.HasPermission("dives:read") {
		t.Fatal("expected dives:read")
	}
	if got.HasPermission("dives:delete") {
		t.Fatal("unexpected dives:delete")
	}

	if _, err := Require(ctx, "dives:read"); err != nil {
		t.Fatalf("Require: %v", err)
	}
	if _, err := Require(ctx, "dives:delete"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := Require(context.Background(), "dives:read"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
