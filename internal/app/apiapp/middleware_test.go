package apiapp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	authsvc "github.com/glowcheck/backend/internal/services/auth"
)

const middlewareUserID = "0d7c2a0e-6b1f-4c9a-8e3d-1f2a3b4c5d6e"

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	mw := AuthMiddleware(authsvc.NewJWTManager("test-secret", time.Minute), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	req.Header.Set(clientIDHeader, "install-1")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called without a token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareRejectsForeignSignature(t *testing.T) {
	issuer := authsvc.NewJWTManager("other-secret", time.Minute)
	token, _, err := issuer.GenerateAccessToken(middlewareUserID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	mw := AuthMiddleware(authsvc.NewJWTManager("test-secret", time.Minute), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(clientIDHeader, "install-1")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called with a foreign token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareRequiresClientID(t *testing.T) {
	manager := authsvc.NewJWTManager("test-secret", time.Minute)
	token, _, err := manager.GenerateAccessToken(middlewareUserID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	mw := AuthMiddleware(manager, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called without a client id")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestAuthMiddlewarePutsIdentityInContext(t *testing.T) {
	manager := authsvc.NewJWTManager("test-secret", time.Minute)
	token, _, err := manager.GenerateAccessToken(middlewareUserID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	mw := AuthMiddleware(manager, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set(clientIDHeader, " install-1 ")
	rr := httptest.NewRecorder()

	var got authsvc.Identity
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authsvc.IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("identity missing from context")
		}
		got = identity
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNoContent)
	}
	if got.UserID != middlewareUserID || got.ClientID != "install-1" {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, ok := extractBearerToken("Basic abc"); ok {
		t.Fatalf("basic auth must be rejected")
	}
	if _, ok := extractBearerToken("Bearer   "); ok {
		t.Fatalf("empty bearer must be rejected")
	}
	token, ok := extractBearerToken("  Bearer abc.def ")
	if !ok || token != "abc.def" {
		t.Fatalf("unexpected token: %q ok=%v", token, ok)
	}
}
