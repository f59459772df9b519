package crypto

import "crypto/rand"

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandomUint32Below returns a uniformly random value in [0, bound).
// bound must be > 0.
func RandomUint32Below(bound uint32) (uint32, error) {
	if bound == 0 {
		return 0, ErrInvalidKey
	}
	// Rejection sampling to avoid modulo bias.
	limit := uint64(1) << 32
	threshold := limit - limit%uint64(bound)
	for {
		b, err := RandomBytes(4)
		if err != nil {
			return 0, err
		}
		v := uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
		if v < threshold {
			return uint32(v % uint64(bound)), nil
		}
	}
}
