package auth

import (
	"errors"
	"testing"
)

func TestJWTRoundTrip(t *testing.T) {
	if err := InitJWTSecret("s3cret"); err != nil {
		t.Fatalf("InitJWTSecret: %v", err)
	}

	signed, err := GenerateJWT(42, "ada@example.com")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	token, err := VerifyJWT(signed)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}

	id, err := UserIDFromToken(token)
	if err != nil {
		t.Fatalf("UserIDFromToken: %v", err)
	}
	if id != 42 {
		t.Fatalf("user id = %d, want 42", id)
	}

	if _, err := VerifyJWT(signed + "x"); err == nil {
		t.Fatal("tampered token verified")
	}
}

func TestInitJWTSecret_Empty(t *testing.T) {
	if err := InitJWTSecret(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestParsePublicKey(t *testing.T) {
	key := GeneratePublicKey()
	if len(key) != 32 {
		t.Fatalf("key length = %d", len(key))
	}

	dsn := BuildDSN("https", "crons.example.com", key, 9)
	if dsn != "https://"+key+"@crons.example.com/9" {
		t.Fatalf("dsn = %q", dsn)
	}

	for _, input := range []string{key, dsn, "  " + dsn + " "} {
		got, err := ParsePublicKey(input)
		if err != nil {
			t.Fatalf("ParsePublicKey(%q): %v", input, err)
		}
		if got != key {
			t.Fatalf("ParsePublicKey(%q) = %q", input, got)
		}
	}

	for _, bad := range []string{"", "short", "https://crons.example.com/9", "ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		if _, err := ParsePublicKey(bad); !errors.Is(err, ErrInvalidDSN) {
			t.Errorf("ParsePublicKey(%q) err = %v", bad, err)
		}
	}
}

func TestPrincipalCanRead(t *testing.T) {
	if !(Principal{Kind: PrincipalUser}).CanRead() {
		t.Error("users should be able to read")
	}
	if (Principal{Kind: PrincipalProjectKey}).CanRead() {
		t.Error("project keys must not read")
	}
}
