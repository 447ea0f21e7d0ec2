package security

import (
	"strings"
	"testing"
)

func TestHashPasswordRequiresMinimumLength(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
}

func TestHashPasswordAndVerify(t *testing.T) {
	password := "open-house-password"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !IsHashed(hash) {
		t.Fatalf("expected %q to be recognised as a hash", hash)
	}
	if !VerifyPassword(password, hash) {
		t.Fatalf("expected password verification to succeed")
	}
	if VerifyPassword("wrong-password", hash) {
		t.Fatalf("expected wrong password verification to fail")
	}
}

func TestMatchPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	for _, tc := range []struct {
		name     string
		password string
		stored   string
		want     bool
	}{
		{"plaintext exact", "pw1", "pw1", true},
		{"plaintext case sensitive", "PW1", "pw1", false},
		{"plaintext prefix", "pw", "pw1", false},
		{"plaintext empty attempt", "", "pw1", false},
		{"hashed match", "correct-horse", hash, true},
		{"hashed mismatch", "correct-horsE", hash, false},
		{"hash typed as password", hash, hash, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchPassword(tc.password, tc.stored); got != tc.want {
				t.Fatalf("MatchPassword(%q) = %v, want %v", tc.password, got, tc.want)
			}
		})
	}
}

func TestCheckSecret(t *testing.T) {
	if err := CheckSecret(""); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
	if err := CheckSecret("v1$broken"); err == nil {
		t.Fatalf("expected malformed hash to be rejected")
	}
	if err := CheckSecret("plain"); err != nil {
		t.Fatalf("unexpected error for plaintext secret: %v", err)
	}
}

func TestNewToken(t *testing.T) {
	a, err := NewToken(32)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	b, err := NewToken(32)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("unexpected token lengths %d and %d", len(a), len(b))
	}
	if a == b {
		t.Fatalf("expected distinct tokens")
	}
	if strings.ContainsAny(a, "-_=/+") {
		t.Fatalf("token %q contains non-alphanumeric characters", a)
	}
}
