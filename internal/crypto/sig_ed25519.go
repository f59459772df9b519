// Package crypto provides the primitives the rest of the server is
// built from: Ed25519 signatures, SHA-256 hashing, cryptographically
// secure randomness, and constant-time comparison. The server never
// performs key agreement or symmetric encryption; clients own all of
// that, so this package stops at verification and hashing.
package crypto

import (
	"crypto/ed25519"
	"errors"
)

// ErrInvalidKey is returned when caller-supplied key bytes do not
// decode to a valid Ed25519 point.
var ErrInvalidKey = errors.New("crypto: invalid ed25519 key")

// Verify reports whether sig is a valid Ed25519 signature by pub over msg.
// A malformed pub or sig is treated as a failed verification, not a panic.
func Verify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// Sign signs msg with priv, which must be an ed25519.PrivateKey-sized
// seed-derived key. Returns ErrInvalidKey if priv has the wrong length.
func Sign(priv, msg []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKey
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), msg), nil
}

// GenerateKey returns a new Ed25519 key pair, useful for tests and
// for the administrative CLI's local key generation.
func GenerateKey() (pub, priv []byte, err error) {
	p, s, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, err
	}
	return p, s, nil
}
