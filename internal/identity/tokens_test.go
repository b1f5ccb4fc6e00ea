package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenIssuer_roundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), "http://localhost:8080", time.Hour)
	userID := uuid.New()

	signed, err := issuer.Issue(userID, []string{"read", "write"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := issuer.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != userID.String() {
		t.Errorf("UserID: got %q, want %q", claims.UserID, userID)
	}
	if len(claims.Scopes) != 2 || claims.Scopes[0] != "read" {
		t.Errorf("Scopes: got %v", claims.Scopes)
	}
	if claims.Type != "access" {
		t.Errorf("Type: got %q", claims.Type)
	}
}

func TestTokenIssuer_rejectsWrongSecret(t *testing.T) {
	a := NewTokenIssuer([]byte("secret-a"), "http://localhost:8080", time.Hour)
	b := NewTokenIssuer([]byte("secret-b"), "http://localhost:8080", time.Hour)

	signed, err := a.Issue(uuid.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(signed); err == nil {
		t.Error("expected verification to fail with a different secret")
	}
}

func TestTokenIssuer_rejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), "http://localhost:8080", -time.Minute)
	signed, err := issuer.Issue(uuid.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Verify(signed); err == nil {
		t.Error("expected verification to fail for an expired token")
	}
}

func TestTokenIssuer_rejectsWrongIssuer(t *testing.T) {
	a := NewTokenIssuer([]byte("test-secret"), "http://a.example", time.Hour)
	b := NewTokenIssuer([]byte("test-secret"), "http://b.example", time.Hour)

	signed, err := a.Issue(uuid.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(signed); err == nil {
		t.Error("expected verification to fail for a mismatched issuer")
	}
}

func TestNewAPIToken(t *testing.T) {
	raw, hash, prefix, err := NewAPIToken()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(raw, "sk_") {
		t.Errorf("raw token should carry sk_ prefix, got %q", raw[:4])
	}
	if hash != HashToken(raw) {
		t.Error("returned hash must match HashToken(raw)")
	}
	if prefix != raw[:8] {
		t.Errorf("visible prefix: got %q", prefix)
	}

	raw2, _, _, err := NewAPIToken()
	if err != nil {
		t.Fatal(err)
	}
	if raw == raw2 {
		t.Error("tokens must be unique")
	}
}

func TestNewRefreshToken(t *testing.T) {
	raw, _, _, err := NewRefreshToken()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(raw, "sr_") {
		t.Errorf("refresh token should carry sr_ prefix, got %q", raw[:4])
	}
}

func TestVerifyPKCE(t *testing.T) {
	verifier := "some-long-random-verifier-string"
	sum := sha256.Sum256([]byte(verifier))
	s256 := base64.RawURLEncoding.EncodeToString(sum[:])

	cases := []struct {
		name      string
		challenge string
		method    string
		verifier  string
		wantErr   bool
	}{
		{"S256 match", s256, PKCEMethodS256, verifier, false},
		{"S256 mismatch", s256, PKCEMethodS256, "wrong", true},
		{"plain match", verifier, PKCEMethodPlain, verifier, false},
		{"plain mismatch", verifier, PKCEMethodPlain, "wrong", true},
		{"empty method defaults to plain", verifier, "", verifier, false},
		{"no challenge skips the check", "", PKCEMethodS256, "", false},
		{"missing verifier", s256, PKCEMethodS256, "", true},
		{"unknown method", s256, "S512", verifier, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyPKCE(tc.challenge, tc.method, tc.verifier)
			if (err != nil) != tc.wantErr {
				t.Errorf("got err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestValidPKCEMethod(t *testing.T) {
	if !ValidPKCEMethod("S256") || !ValidPKCEMethod("plain") {
		t.Error("S256 and plain must be accepted")
	}
	if ValidPKCEMethod("s256") || ValidPKCEMethod("") {
		t.Error("unknown methods must be rejected")
	}
}
