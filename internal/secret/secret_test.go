package secret

import (
	"strings"
	"testing"
)

func TestBoxRoundTrip(t *testing.T) {
	box, err := New([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a, err := box.Encrypt("app-password")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, _ := box.Encrypt("app-password")
	if a == b {
		t.Fatal("two encryptions produced the same ciphertext")
	}

	got, err := box.Decrypt(a)
	if err != nil || got != "app-password" {
		t.Fatalf("got %q (%v), want app-password", got, err)
	}
}

func TestBoxRejectsForeignCiphertext(t *testing.T) {
	one, _ := New([]byte(strings.Repeat("a", 32)))
	two, _ := New([]byte(strings.Repeat("b", 32)))

	enc, _ := one.Encrypt("secret")
	if _, err := two.Decrypt(enc); err == nil {
		t.Fatal("expected error decrypting with another key")
	}
	if _, err := one.Decrypt("c2hvcnQ="); err == nil {
		t.Fatal("expected error for short ciphertext")
	}
	if _, err := New([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}
