// Package cryptox holds the credential-derivation primitives used by the
// offline login path: a memory-hard key derivation and a compact verifier
// that can be cached locally without exposing the password.
package cryptox

import (
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
)

// DeriveKey derives a 32-byte key from the password and salt using Argon2id.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// MakeVerifier returns the value stored locally to verify a derived key.
// Storing the hash rather than the key keeps the cached record useless for
// decryption if the device storage leaks.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}
