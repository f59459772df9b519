package httpapi

import (
	"net/http"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/validator"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func (s *Server) handleDevicePreKeysUpload(w http.ResponseWriter, r *http.Request) {
	var req wire.DevicePrekeyUploadRequest
	if err := decodeRecord(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if _, err := s.registry.AuthenticateUser(req.UserKey, req.DeviceKey, req.AuthToken); err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckDevicePreKeys(req.Keys, req.DeviceKey); err != nil {
		writeErr(w, err)
		return
	}
	if _, err := s.registry.AddDevicePreKeys(req.UserKey, req.DeviceKey, req.Keys); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleUserPreKeys(w http.ResponseWriter, r *http.Request) {
	userKey, _, _, err := s.authenticateDeviceFromHeaders(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	count, err := headerUint(r, HeaderCount)
	if err != nil {
		writeErr(w, err)
		return
	}
	if count == 0 {
		writeErr(w, apperr.Invalid("count must be positive"))
		return
	}
	bundle, err := s.registry.GetDevicePreKeys(userKey, int(count))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeRecord(w, bundle)
}
