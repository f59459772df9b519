package httpapi

import (
	"encoding/base32"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// Header names for the small opaque parameters spec.md's HTTP table
// carries out-of-band. Binary values are standard base64.
const (
	HeaderUser       = "X-User-Key"
	HeaderDevice     = "X-Device-Key"
	HeaderAuth       = "X-Auth-Token"
	HeaderUsername   = "X-Username"
	HeaderTargetUser = "X-Target-User"
	HeaderCount      = "X-Count"
	HeaderReceiver   = "X-Receiver"
	HeaderApp        = "X-App"
	HeaderStart      = "X-Start"
)

var pathIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func headerBytes(r *http.Request, name string) ([]byte, error) {
	v := r.Header.Get(name)
	if v == "" {
		return nil, apperr.Invalid("missing header " + name)
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, apperr.Invalid("malformed header " + name)
	}
	return b, nil
}

func headerString(r *http.Request, name string) (string, error) {
	v := r.Header.Get(name)
	if v == "" {
		return "", apperr.Invalid("missing header " + name)
	}
	return v, nil
}

func headerUint(r *http.Request, name string) (uint32, error) {
	v := r.Header.Get(name)
	if v == "" {
		return 0, apperr.Invalid("missing header " + name)
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, apperr.Invalid("malformed header " + name)
	}
	return uint32(n), nil
}

func decodePathID(s string) ([]byte, error) {
	b, err := pathIDEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Invalid("malformed path id")
	}
	return b, nil
}

func decodeRecord(r *http.Request, out any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.Invalid("read request body")
	}
	if err := wire.Unmarshal(body, out); err != nil {
		return apperr.Invalid("malformed request body")
	}
	return nil
}

func writeRecord(w http.ResponseWriter, v any) {
	b, err := wire.Marshal(v)
	if err != nil {
		writeErr(w, apperr.Internal("encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}

func writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := string(kind)
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		msg += ": " + appErr.Message
	}
	http.Error(w, msg, kind.Status())
}
