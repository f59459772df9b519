package crypto

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b are byte-for-byte equal,
// in time independent of their contents. Slices of unequal length are
// unequal without a length-revealing early return on content.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
