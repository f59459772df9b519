package httpapi

import (
	"net/http"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
)

func (s *Server) handleAdminRenew(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeErr(w, err)
		return
	}
	token, err := s.registry.RenewAdminToken()
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(token)
}

func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeErr(w, err)
		return
	}
	if !s.development {
		writeErr(w, apperr.Invalid("reset is only available in development mode"))
		return
	}
	if err := s.registry.ResetAll(); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}

type accountSummary struct {
	UserKey     []byte `cbor:"1,keyasint"`
	Name        string `cbor:"2,keyasint"`
	DeviceCount int    `cbor:"3,keyasint"`
}

type accountList struct {
	Accounts []accountSummary `cbor:"1,keyasint"`
}

func (s *Server) handleAdminAccounts(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeErr(w, err)
		return
	}
	list := s.registry.ListAccounts()
	resp := accountList{Accounts: make([]accountSummary, 0, len(list))}
	for _, a := range list {
		resp.Accounts = append(resp.Accounts, accountSummary{UserKey: a.UserKey, Name: a.Name, DeviceCount: a.DeviceCount})
	}
	writeRecord(w, resp)
}

func (s *Server) handleAdminAllow(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeErr(w, err)
		return
	}
	if !s.rlAdminAllow.allow(getClientIP(r)) {
		tooMany(w)
		return
	}
	name, err := headerString(r, HeaderUsername)
	if err != nil {
		writeErr(w, err)
		return
	}
	allowed, err := s.registry.AllowUser(name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeRecord(w, allowed)
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		writeErr(w, err)
		return
	}
	userKey, err := headerBytes(r, HeaderTargetUser)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.registry.DeleteUser(userKey); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}
