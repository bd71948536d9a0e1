package common

import "crypto/rand"

// WipeByteArray zeroes the buffer in place. Safe to call with nil.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateRandByteArray returns n cryptographically random bytes.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}
