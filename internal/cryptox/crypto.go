// Package cryptox implements the cryptographic primitives of the service:
// password hashing, and envelope encryption for linked-account secrets at
// rest. The envelope format is "nonceHex:cipherHex" so that the random nonce
// travels with the ciphertext; the nonce is not secret but must be unique per
// encryption.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tglinker/internal/common"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DeriveKey turns a server-held secret string into a fixed-length AES-256
// key by hashing it with SHA-256. Returns common.ErrMissingSecret when the
// secret is empty; callers that need the key treat that as fatal, not as a
// per-call condition.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, common.ErrMissingSecret
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}

// EncryptString encrypts plaintext with AES-256-GCM under key, drawing a
// fresh random nonce, and returns the "nonceHex:cipherHex" envelope.
func EncryptString(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cipher init error: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher init error: %w", err)
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptString reverses EncryptString. An envelope without the expected
// two-part structure yields common.ErrMalformedEnvelope.
func DecryptString(envelope string, key []byte) (string, error) {
	nonceHex, cipherHex, ok := strings.Cut(envelope, ":")
	if !ok || nonceHex == "" || cipherHex == "" {
		return "", common.ErrMalformedEnvelope
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", common.ErrMalformedEnvelope
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", common.ErrMalformedEnvelope
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cipher init error: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher init error: %w", err)
	}
	if len(nonce) != aesgcm.NonceSize() {
		return "", common.ErrMalformedEnvelope
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption error: %w", err)
	}
	return string(plaintext), nil
}
