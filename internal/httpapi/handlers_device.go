package httpapi

import (
	"io"
	"net/http"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/validator"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func (s *Server) handleDeviceRegister(w http.ResponseWriter, r *http.Request) {
	var newInfo wire.InternalUser
	if err := decodeRecord(r, &newInfo); err != nil {
		writeErr(w, err)
		return
	}
	oldInfo, ok := s.registry.GetUser(newInfo.IdentityKey)
	if !ok {
		writeErr(w, apperr.NotFound("unknown user"))
		return
	}
	if err := validator.CheckDeviceAdd(oldInfo, newInfo); err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckFreshness(newInfo.Timestamp); err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckSelfSigned(newInfo, newInfo.IdentityKey, newInfo.Signature); err != nil {
		writeErr(w, err)
		return
	}
	newDevice := newInfo.Devices[len(newInfo.Devices)-1]
	if s.registry.DeviceExists(newDevice.DeviceKey) {
		writeErr(w, apperr.AlreadyExists("device key already in use"))
		return
	}
	token, err := s.registry.RegisterDevice(newInfo.IdentityKey, newInfo)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(token)
}

func (s *Server) handleDevicePush(w http.ResponseWriter, r *http.Request) {
	_, deviceKey, _, err := s.authenticateDeviceFromHeaders(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, apperr.Invalid("read request body"))
		return
	}
	if len(body) != 16 {
		writeErr(w, apperr.Invalid("push token must be 16 bytes"))
		return
	}
	if err := s.registry.SetPushToken(deviceKey, body); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDeviceDelete(w http.ResponseWriter, r *http.Request) {
	var newInfo wire.InternalUser
	if err := decodeRecord(r, &newInfo); err != nil {
		writeErr(w, err)
		return
	}
	oldInfo, ok := s.registry.GetUser(newInfo.IdentityKey)
	if !ok {
		writeErr(w, apperr.NotFound("unknown user"))
		return
	}
	removed, err := validator.CheckDeviceRemove(oldInfo, newInfo)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckFreshness(newInfo.Timestamp); err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckSelfSigned(newInfo, newInfo.IdentityKey, newInfo.Signature); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.registry.DeleteDevice(newInfo.IdentityKey, newInfo, removed); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleDeviceMessages(w http.ResponseWriter, r *http.Request) {
	userKey, deviceKey, _, err := s.authenticateDeviceFromHeaders(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	download, err := s.registry.GetMessagesForDevice(userKey, deviceKey)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeRecord(w, download)
}
