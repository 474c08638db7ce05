package cryptox

import (
	"errors"
	"testing"

	"github.com/dmitrijs2005/tglinker/internal/common"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := DeriveKey("unit-test-secret")
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}
	return key
}

func TestDeriveKey_MissingSecret(t *testing.T) {
	if _, err := DeriveKey(""); !errors.Is(err, common.ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestDeriveKey_DeterministicFixedLength(t *testing.T) {
	k1, err := DeriveKey("s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := DeriveKey("s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(k1) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(k1))
	}
	if string(k1) != string(k2) {
		t.Fatalf("expected same key for same secret")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(t)

	for _, plaintext := range []string{"x", "session-string-payload", "данные"} {
		env, err := EncryptString(plaintext, key)
		if err != nil {
			t.Fatalf("EncryptString error: %v", err)
		}
		got, err := DecryptString(env, key)
		if err != nil {
			t.Fatalf("DecryptString error: %v", err)
		}
		if got != plaintext {
			t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptString_FreshNoncePerCall(t *testing.T) {
	key := testKey(t)

	a, err := EncryptString("same input", key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := EncryptString("same input", key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatalf("two encryptions of the same input produced identical envelopes")
	}
}

func TestDecryptString_MalformedEnvelope(t *testing.T) {
	key := testKey(t)

	for _, envelope := range []string{"", "nocolon", ":abc", "abc:", "zz:zz", "0102:zz"} {
		if _, err := DecryptString(envelope, key); !errors.Is(err, common.ErrMalformedEnvelope) {
			t.Fatalf("envelope %q: expected ErrMalformedEnvelope, got %v", envelope, err)
		}
	}
}

func TestDecryptString_WrongKeyFails(t *testing.T) {
	key := testKey(t)
	otherKey, err := DeriveKey("different-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env, err := EncryptString("secret", key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := DecryptString(env, otherKey); err == nil {
		t.Fatalf("expected decryption failure with the wrong key")
	}
}

func TestHashPassword_CheckPassword(t *testing.T) {
	hash, err := HashPassword("pass1")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}
	if hash == "pass1" {
		t.Fatalf("hash equals plaintext")
	}
	if !CheckPassword("pass1", hash) {
		t.Fatalf("expected matching password to verify")
	}
	if CheckPassword("pass2", hash) {
		t.Fatalf("expected non-matching password to fail")
	}
}
