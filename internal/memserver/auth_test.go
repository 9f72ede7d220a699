package memserver

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/eventstore-go/internal/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// TestAuthenticator_Tokens tests bearer token issue and validation
func TestAuthenticator_Tokens(t *testing.T) {
	auth := NewAuthenticator("test-secret", nil)

	token, expiresAt, err := auth.GenerateToken("admin", time.Minute)
	if err != nil {
		t.Fatalf("Expected no error generating token, got %v", err)
	}
	if token == "" {
		t.Error("Expected non-empty token")
	}
	if time.Until(expiresAt) > time.Minute {
		t.Errorf("Expected expiry within a minute, got %v", expiresAt)
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("Expected no error validating token, got %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("Expected username 'admin', got '%s'", claims.Username)
	}

	if _, err := auth.ValidateToken("invalid-token"); err == nil {
		t.Error("Expected error for invalid token")
	}
	if _, _, err := auth.GenerateToken("", time.Minute); err == nil {
		t.Error("Expected error for empty username")
	}

	other := NewAuthenticator("other-secret", nil)
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("Expected error for a token signed with another key")
	}
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	auth := NewAuthenticator("test-secret", nil)

	token, _, err := auth.GenerateToken("admin", time.Nanosecond)
	if err != nil {
		t.Fatalf("Expected no error generating token, got %v", err)
	}
	time.Sleep(time.Second)

	if _, err := auth.Authenticate("Bearer " + token); err == nil {
		t.Error("Expected error for an expired token")
	}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	auth := NewAuthenticator("test-secret", map[string]string{"admin": "changeit"})
	token, _, _ := auth.GenerateToken("ops", time.Minute)

	tests := []struct {
		name    string
		header  string
		user    string
		wantErr bool
	}{
		{name: "basic", header: basic("admin", "changeit"), user: "admin"},
		{name: "bad password", header: basic("admin", "nope"), wantErr: true},
		{name: "unknown user", header: basic("root", "changeit"), wantErr: true},
		{name: "malformed basic", header: "Basic !!!", wantErr: true},
		{name: "bearer", header: "Bearer " + token, user: "ops"},
		{name: "missing", header: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := auth.Authenticate(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if user != tt.user {
				t.Errorf("Expected user %q, got %q", tt.user, user)
			}
		})
	}
}

func TestAuthenticator_Authorize(t *testing.T) {
	auth := NewAuthenticator("test-secret", map[string]string{"admin": "changeit"})

	_, err := auth.authorize(context.Background(), wire.MethodRead)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("Expected Unauthenticated without credentials, got %v", err)
	}

	if _, err := auth.authorize(context.Background(), wire.MethodGossipRead); err != nil {
		t.Errorf("Expected gossip to need no credentials, got %v", err)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", basic("admin", "changeit")))
	ctx, err = auth.authorize(ctx, wire.MethodAppend)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if user, ok := User(ctx); !ok || user != "admin" {
		t.Errorf("Expected user 'admin' on the context, got %q", user)
	}
}
