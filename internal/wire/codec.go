// Package wire defines every record exchanged over the HTTP surface
// and persisted to storage, and the canonical encoding they share.
// Field tags are fixed; adding a field means picking the next unused
// tag, never renumbering an existing one.
package wire

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// sorted keys, minimal integers, no indefinite-length items. Two
// records with the same field values always produce the same bytes,
// which the self-signed-record convention and the chain hash both
// depend on.
var encMode cbor.EncMode

// decMode accepts any valid CBOR and ignores unknown fields, so a
// server can add a new tagged field without breaking older clients.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("wire: decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to its canonical CBOR form.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
