package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	KeySize = 16
	keySalt = "MSG_KEY_SALT"
)

type SessionKey [KeySize]byte

// DeriveKey returns SHA-256(contactID || "MSG_KEY_SALT") truncated to 16 bytes.
func DeriveKey(contactID string) SessionKey {
	sum := sha256.Sum256([]byte(contactID + keySalt))
	var k SessionKey
	copy(k[:], sum[:KeySize])
	return k
}

// GenerateKey returns a fresh random key for a single call.
func GenerateKey() (SessionKey, error) {
	var k SessionKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("failed to generate key: %w", err)
	}
	return k, nil
}

// Fingerprint returns the first 8 hex chars of SHA-256(s).
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}
