// Package password implements the one-way gate in front of a bundle's file
// listing and download. Digests are deterministic so they can be persisted
// and recomputed for comparison; there is no salting and no attempt
// throttling, matching the behavior this gate is specified against.
package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns the hex-encoded SHA-256 digest of pwd. The same input always
// yields the same output; the digest, never the plaintext, is what gets
// persisted on the bundle record.
func Hash(pwd string) string {
	sum := sha256.Sum256([]byte(pwd))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of pwd and compares it against the stored
// one in constant time. An empty stored digest never verifies; a bundle
// without a digest requires no password and callers skip Verify entirely.
func Verify(pwd, digest string) bool {
	if digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Hash(pwd)), []byte(digest)) == 1
}
