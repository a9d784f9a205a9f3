package encryption

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 100000
	kdfKeyLength  = 32 // AES-256
)

// The salt is static on purpose: the derived key must be identical across
// every process sharing the same operator secret, or staged MFA secrets
// written by one instance could not be read by another.
var kdfSalt = []byte("sentinel_enterprise_2025")

// DeriveKey turns the operator-supplied secret into a stable 32-byte
// symmetric encryption key using PBKDF2-HMAC-SHA256.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), kdfSalt, kdfIterations, kdfKeyLength, sha256.New)
}
