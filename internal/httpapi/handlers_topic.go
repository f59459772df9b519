package httpapi

import (
	"net/http"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/validator"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func (s *Server) handleTopicCreate(w http.ResponseWriter, r *http.Request) {
	userKey, deviceKey, _, err := s.authenticateDeviceFromHeaders(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var topic wire.Topic
	if err := decodeRecord(r, &topic); err != nil {
		writeErr(w, err)
		return
	}
	userExists := func(k []byte) bool {
		_, ok := s.registry.GetUser(k)
		return ok
	}
	if err := validator.CheckTopicCreation(topic, userKey, userExists); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.registry.CreateTopic(topic, deviceKey); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleTopicMessage(w http.ResponseWriter, r *http.Request) {
	var upload wire.TopicUpdateUpload
	if err := decodeRecord(r, &upload); err != nil {
		writeErr(w, err)
		return
	}
	if _, _, err := s.registry.AuthenticateDevice(upload.DeviceKey, upload.AuthToken); err != nil {
		writeErr(w, err)
		return
	}
	state, ok := s.registry.GetTopicState(upload.TopicID)
	if !ok {
		writeErr(w, apperr.NotFound("unknown topic"))
		return
	}
	uploaded := make(map[string][]byte, len(upload.Files))
	for _, f := range upload.Files {
		sum := crypto.Hash(f.Data)
		uploaded[string(f.ID)] = sum[:]
	}
	previouslyStored := func(fileID []byte) bool {
		return s.registry.FileExists(upload.TopicID, fileID)
	}
	if err := validator.CheckTopicUpdate(upload.Update, state.Info.Members, uploaded, previouslyStored); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.registry.StoreMessageFiles(upload.TopicID, upload.Files); err != nil {
		writeErr(w, err)
		return
	}
	chain, err := s.registry.AddMessage(upload.TopicID, upload.Update, upload.DeviceKey)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeRecord(w, chain)
}

func (s *Server) handleTopicRange(w http.ResponseWriter, r *http.Request) {
	userKey, _, _, err := s.authenticateDeviceFromHeaders(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	topicID, err := decodePathID(r.PathValue("topicId"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !s.registry.IsTopicMember(topicID, userKey) {
		writeErr(w, apperr.Unauthorized("not a member of this topic"))
		return
	}
	start, err := headerUint(r, HeaderStart)
	if err != nil {
		writeErr(w, err)
		return
	}
	count, err := headerUint(r, HeaderCount)
	if err != nil {
		writeErr(w, err)
		return
	}
	chain, err := s.registry.GetMessagesInRange(topicID, start, count)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeRecord(w, chain)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	userKey, _, _, err := s.authenticateDeviceFromHeaders(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	topicID, err := decodePathID(r.PathValue("topicId"))
	if err != nil {
		writeErr(w, err)
		return
	}
	messageID, err := decodePathID(r.PathValue("messageId"))
	if err != nil {
		writeErr(w, err)
		return
	}
	data, err := s.registry.GetFile(userKey, topicID, messageID)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
