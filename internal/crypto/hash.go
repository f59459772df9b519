package crypto

import "crypto/sha256"

// Hash returns the SHA-256 digest of b.
func Hash(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// HashChain computes SHA256(prior || next), the step used to advance
// a topic's chain output over an appended update's signature. prior
// is the raw topic ID for a chain's first step and a 32-byte digest
// for every step after, so it is taken as a slice rather than a fixed
// array.
func HashChain(prior, next []byte) [32]byte {
	h := sha256.New()
	h.Write(prior)
	h.Write(next)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
