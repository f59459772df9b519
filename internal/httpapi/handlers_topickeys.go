package httpapi

import (
	"net/http"

	"github.com/christophhagen/RendezvousServer/internal/validator"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func (s *Server) handleUserTopicKeysUpload(w http.ResponseWriter, r *http.Request) {
	var bundle wire.TopicKeyBundle
	if err := decodeRecord(r, &bundle); err != nil {
		writeErr(w, err)
		return
	}
	user, err := s.registry.AuthenticateUser(bundle.UserKey, bundle.DeviceKey, bundle.AuthToken)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckTopicKeys(bundle.Keys, bundle.UserKey); err != nil {
		writeErr(w, err)
		return
	}
	if err := validator.CheckTopicKeyBundleShape(bundle, user.Devices); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.registry.AddTopicKeys(bundle); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleUserTopicKey(w http.ResponseWriter, r *http.Request) {
	if !s.rlTopicKey.allow(getClientIP(r)) {
		tooMany(w)
		return
	}
	if _, _, _, err := s.authenticateDeviceFromHeaders(r); err != nil {
		writeErr(w, err)
		return
	}
	receiver, err := headerBytes(r, HeaderReceiver)
	if err != nil {
		writeErr(w, err)
		return
	}
	appID, err := headerString(r, HeaderApp)
	if err != nil {
		writeErr(w, err)
		return
	}
	key, err := s.registry.GetTopicKey(receiver, appID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeRecord(w, key)
}

func (s *Server) handleUsersTopicKey(w http.ResponseWriter, r *http.Request) {
	if !s.rlTopicKeys.allow(getClientIP(r)) {
		tooMany(w)
		return
	}
	var req wire.TopicKeyRequest
	if err := decodeRecord(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if _, err := s.registry.AuthenticateUser(req.UserKey, req.DeviceKey, req.AuthToken); err != nil {
		writeErr(w, err)
		return
	}
	resp, err := s.registry.GetTopicKeys(req.Receivers, req.Application)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeRecord(w, resp)
}
