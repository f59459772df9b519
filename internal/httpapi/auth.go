package httpapi

import (
	"net/http"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// authenticateDeviceFromHeaders reads user/device/auth headers and
// authenticates the (user, device, token) triple against the registry.
func (s *Server) authenticateDeviceFromHeaders(r *http.Request) (userKey, deviceKey []byte, user wire.InternalUser, err error) {
	userKey, err = headerBytes(r, HeaderUser)
	if err != nil {
		return nil, nil, wire.InternalUser{}, err
	}
	deviceKey, err = headerBytes(r, HeaderDevice)
	if err != nil {
		return nil, nil, wire.InternalUser{}, err
	}
	token, err := headerBytes(r, HeaderAuth)
	if err != nil {
		return nil, nil, wire.InternalUser{}, err
	}
	user, err = s.registry.AuthenticateUser(userKey, deviceKey, token)
	if err != nil {
		return nil, nil, wire.InternalUser{}, err
	}
	return userKey, deviceKey, user, nil
}

func (s *Server) requireAdmin(r *http.Request) error {
	token, err := headerBytes(r, HeaderAuth)
	if err != nil {
		return err
	}
	if !s.registry.VerifyAdminToken(token) {
		return apperr.Unauthorized("invalid admin token")
	}
	return nil
}
