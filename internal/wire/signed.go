package wire

import "github.com/christophhagen/RendezvousServer/internal/crypto"

// Signable is any record that knows how to produce the canonical
// bytes its signature covers (for self-signed records, the record
// re-encoded with the signature field cleared). The signature itself
// is passed separately to VerifySelfSigned.
type Signable interface {
	SignedBytes() ([]byte, error)
}

// VerifySelfSigned checks that sig is a valid Ed25519 signature by
// key over rec's canonical signed bytes. Every self-signed and
// key-signed record in this server goes through this one helper, per
// the zero-the-field/canonical-encode/verify convention.
func VerifySelfSigned(rec Signable, key, sig []byte) (bool, error) {
	b, err := rec.SignedBytes()
	if err != nil {
		return false, err
	}
	return crypto.Verify(key, b, sig), nil
}
