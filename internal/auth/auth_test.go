package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHashAndVerifyAdminToken(t *testing.T) {
	hash, err := HashAdminToken("admin-token-0123456789")
	if err != nil {
		t.Fatalf("hash admin token: %v", err)
	}
	if !VerifyAdminToken(hash, "admin-token-0123456789") {
		t.Fatal("expected admin token to verify")
	}
	if VerifyAdminToken(hash, "wrong") {
		t.Fatal("expected wrong admin token to fail")
	}
	if VerifyAdminToken("", "admin-token-0123456789") {
		t.Fatal("empty hash must never verify")
	}
}

func TestValidateAdminToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "ok", token: "0123456789abcdef"},
		{name: "short", token: "short", wantErr: true},
		{name: "padded", token: " 0123456789abcdef ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAdminToken(tt.token)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b || len(a) < 40 {
		t.Fatalf("unexpected secrets %q %q", a, b)
	}
}

func TestTokenIssueAndParse(t *testing.T) {
	m := NewTokenManager("signing-key", time.Hour)

	raw, issued, err := m.Issue(true, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.ExpiresAt.Sub(issued.IssuedAt) != time.Hour {
		t.Fatalf("unexpected ttl: %v", issued.ExpiresAt.Sub(issued.IssuedAt))
	}

	claims, err := m.ParseBearer("Bearer " + raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.Admin || claims.ID != issued.ID {
		t.Fatalf("unexpected claims %+v", claims)
	}

	writer, _, err := m.Issue(false, time.Minute)
	if err != nil {
		t.Fatalf("issue writer: %v", err)
	}
	claims, err = m.Parse(writer)
	if err != nil {
		t.Fatalf("parse writer: %v", err)
	}
	if claims.Admin {
		t.Fatal("writer token must not be admin")
	}
}

func TestTokenRejections(t *testing.T) {
	m := NewTokenManager("signing-key", time.Hour)
	raw, _, err := m.Issue(false, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewTokenManager("another-key", time.Hour)
	if _, err := other.Parse(raw); err == nil {
		t.Fatal("expected signature mismatch")
	}

	expired := NewTokenManager("signing-key", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := expired.Parse(raw); err == nil {
		t.Fatal("expected expired token to fail")
	}

	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("signing-key"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}
	if _, err := m.Parse(hs256); err == nil {
		t.Fatal("expected HS256 token to be rejected")
	}

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("signing-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(wrongIssuer); err == nil {
		t.Fatal("expected foreign issuer to be rejected")
	}

	if _, err := m.ParseBearer(raw); err == nil || !strings.Contains(err.Error(), "bearer") {
		t.Fatalf("expected missing bearer prefix error, got %v", err)
	}
}

func TestTokenManagerWithoutKey(t *testing.T) {
	m := NewTokenManager("", 0)
	if m.Enabled() {
		t.Fatal("manager without key must be disabled")
	}
	if _, _, err := m.Issue(false, 0); err != ErrNoSigningKey {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for in, want := range tests {
		if got := ExtractBearer(in); got != want {
			t.Fatalf("ExtractBearer(%q) = %q, want %q", in, got, want)
		}
	}
}
