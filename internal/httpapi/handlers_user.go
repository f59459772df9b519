package httpapi

import (
	"net/http"

	"github.com/christophhagen/RendezvousServer/internal/validator"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func (s *Server) handleUserRegister(w http.ResponseWriter, r *http.Request) {
	if !s.rlRegister.allow(getClientIP(r)) {
		tooMany(w)
		return
	}
	pin, err := headerUint(r, "X-Pin")
	if err != nil {
		writeErr(w, err)
		return
	}
	var bundle wire.RegistrationBundle
	if err := decodeRecord(r, &bundle); err != nil {
		writeErr(w, err)
		return
	}
	bundle.Pin = pin
	if err := validator.CheckRegistrationBundle(bundle); err != nil {
		writeErr(w, err)
		return
	}
	token, err := s.registry.RegisterUserWithDeviceAndKeys(bundle)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(token)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	_, _, user, err := s.authenticateDeviceFromHeaders(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeRecord(w, user)
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	var info wire.InternalUser
	if err := decodeRecord(r, &info); err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckFreshness(info.Timestamp); err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckSelfSigned(info, info.IdentityKey, info.Signature); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.registry.DeleteUser(info.IdentityKey); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}
