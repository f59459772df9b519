package httpapi

import "net/http"

func (s *Server) routes() {
	s.mux.HandleFunc("GET /ping", s.handlePing)

	s.mux.HandleFunc("GET /admin/renew", s.handleAdminRenew)
	s.mux.HandleFunc("GET /admin/reset", s.handleAdminReset)
	s.mux.HandleFunc("GET /admin/accounts", s.handleAdminAccounts)
	s.mux.HandleFunc("POST /admin/allow", s.handleAdminAllow)
	s.mux.HandleFunc("POST /admin/delete", s.handleAdminDelete)

	s.mux.HandleFunc("POST /user/register", s.handleUserRegister)
	s.mux.HandleFunc("GET /user/info", s.handleUserInfo)
	s.mux.HandleFunc("POST /user/delete", s.handleUserDelete)

	s.mux.HandleFunc("POST /device/register", s.handleDeviceRegister)
	s.mux.HandleFunc("POST /device/push", s.handleDevicePush)
	s.mux.HandleFunc("POST /device/delete", s.handleDeviceDelete)
	s.mux.HandleFunc("POST /device/prekeys", s.handleDevicePreKeysUpload)
	s.mux.HandleFunc("GET /device/messages", s.handleDeviceMessages)

	s.mux.HandleFunc("GET /user/prekeys", s.handleUserPreKeys)
	s.mux.HandleFunc("POST /user/topickeys", s.handleUserTopicKeysUpload)
	s.mux.HandleFunc("GET /user/topickey", s.handleUserTopicKey)
	s.mux.HandleFunc("POST /users/topickey", s.handleUsersTopicKey)

	s.mux.HandleFunc("POST /topic/create", s.handleTopicCreate)
	s.mux.HandleFunc("POST /topic/message", s.handleTopicMessage)
	s.mux.HandleFunc("GET /topic/range/{topicId}/", s.handleTopicRange)
	s.mux.HandleFunc("GET /files/{topicId}/{messageId}", s.handleGetFile)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
