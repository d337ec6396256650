package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testUserID = "2c1d6b9e-7a51-4f3e-8d0a-5b6c7d8e9f10"

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, expires, err := m.GenerateAccessToken(testUserID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := m.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != testUserID {
		t.Fatalf("unexpected subject %q", claims.UserID)
	}
	if claims.ExpiresAt.Unix() != expires.Unix() {
		t.Fatalf("unexpected expiry %s, want %s", claims.ExpiresAt, expires)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	token, _, err := m.GenerateAccessToken(testUserID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := m.ParseAccessToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := NewJWTManager("one", time.Hour).GenerateAccessToken(testUserID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := NewJWTManager("two", time.Hour).ParseAccessToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGenerateAccessTokenRequiresUUID(t *testing.T) {
	if _, _, err := NewJWTManager("secret", time.Hour).GenerateAccessToken("42"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: testUserID, ClientID: "device"})
	got, ok := IdentityFromContext(ctx)
	if !ok || got.UserID != testUserID || got.ClientID != "device" {
		t.Fatalf("unexpected identity %+v ok=%v", got, ok)
	}
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("expected no identity on bare context")
	}
}
