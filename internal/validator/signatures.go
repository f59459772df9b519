package validator

import (
	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// CheckSelfSigned verifies rec's signature under key, the record's
// own designated signing key, per the zero-the-field/
// canonical-encode/verify convention every signed record shares.
func CheckSelfSigned(rec wire.Signable, key, sig []byte) error {
	ok, err := wire.VerifySelfSigned(rec, key, sig)
	if err != nil {
		return apperr.Internal("encode record for signature check", err)
	}
	if !ok {
		return apperr.BadSignature("signature does not verify")
	}
	return nil
}

// CheckKeySigned is CheckSelfSigned under a caller-supplied key,
// named separately because callers reach for it when the signing key
// is not the record's own field (e.g. a prekey signed by its device,
// or a topic key signed by its owning identity key).
func CheckKeySigned(rec wire.Signable, key, sig []byte) error {
	return CheckSelfSigned(rec, key, sig)
}
