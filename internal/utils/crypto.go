package utils

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecureCompare reports whether a and b are equal without leaking, through
// timing, how much of the secret matched. Both sides are hashed first so the
// comparison length does not depend on the input length either.
func SecureCompare(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
