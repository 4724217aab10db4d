// Package idgen generates opaque identifiers for API resources.
//
// IDs carry a short type prefix ("usr_", "rev_", "tok_") so they are
// self-describing in logs and API payloads.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the host is broken; no point limping on.
		panic("idgen: " + err.Error())
	}
	return b
}

// WithPrefix returns prefix followed by 24 hex characters of randomness.
func WithPrefix(prefix string) string {
	return prefix + hex.EncodeToString(randomBytes(12))
}

// Hex returns a random hex string of numBytes bytes (2*numBytes characters).
// Used for session token material, where more entropy is wanted than for IDs.
func Hex(numBytes int) string {
	return hex.EncodeToString(randomBytes(numBytes))
}
