package admin

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testCredentials(t *testing.T) Credentials {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return Credentials{Username: "admin", PasswordHash: string(hash)}
}

func TestVerify(t *testing.T) {
	creds := testCredentials(t)

	tests := []struct {
		user, pass string
		want       bool
	}{
		{user: "admin", pass: "s3cret", want: true},
		{user: " admin ", pass: "s3cret", want: true},
		{user: "admin", pass: "wrong", want: false},
		{user: "root", pass: "s3cret", want: false},
		{user: "", pass: "", want: false},
	}

	for _, tt := range tests {
		ok, err := creds.Verify(tt.user, tt.pass)
		if err != nil {
			t.Fatalf("%s/%s: unexpected error: %v", tt.user, tt.pass, err)
		}
		if ok != tt.want {
			t.Fatalf("%s/%s: expected %v, got %v", tt.user, tt.pass, tt.want, ok)
		}
	}
}

func TestVerifyNotConfigured(t *testing.T) {
	_, err := Credentials{Username: "admin"}.Verify("admin", "x")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	_, err := Credentials{Username: "admin", PasswordHash: "plain"}.Verify("admin", "plain")
	if err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("letmein")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := Credentials{Username: "a", PasswordHash: hash}.Verify("a", "letmein")
	if err != nil || !ok {
		t.Fatalf("expected generated hash to verify, got %v, %v", ok, err)
	}

	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
