package registry

import (
	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// RegisterUserWithDeviceAndKeys commits a validated RegistrationBundle:
// persists the initial prekeys and topic keys, registers the user and
// its single device, mints a device auth token, initializes the
// device's mailbox, drops the admitted name, and snapshots. It runs
// the pin gate (as CanRegister does) itself; the caller must already
// have verified the bundle's signatures.
func (r *Registry) RegisterUserWithDeviceAndKeys(bundle wire.RegistrationBundle) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.canRegisterLocked(bundle.Info.Name, bundle.Pin) {
		return nil, apperr.Unauthorized("wrong or expired pin")
	}
	userKey := bundle.Info.IdentityKey
	if _, exists := r.users[string(userKey)]; exists {
		return nil, apperr.AlreadyExists("user already registered")
	}
	device := bundle.Info.Devices[0]
	if _, exists := r.deviceOwner[string(device.DeviceKey)]; exists {
		return nil, apperr.AlreadyExists("device key already in use")
	}

	if _, err := r.store.StorePreKeys(userKey, device.DeviceKey, bundle.PreKeys); err != nil {
		return nil, err
	}
	if _, err := r.store.StoreTopicKeys(userKey, device.Application, bundle.TopicKeys); err != nil {
		return nil, err
	}

	token, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, apperr.Internal("generate device token", err)
	}

	r.users[string(userKey)] = bundle.Info.Clone()
	r.deviceOwner[string(device.DeviceKey)] = string(userKey)
	r.authTokens[string(device.DeviceKey)] = token
	r.mailbox[string(device.DeviceKey)] = wire.Mailbox{
		RemainingPreKeys:   uint32(len(bundle.PreKeys)),
		RemainingTopicKeys: uint32(len(bundle.TopicKeys)),
	}
	delete(r.allowedUsers, bundle.Info.Name)

	r.snapshotLocked()
	return token, nil
}

// DeleteUser removes userKey and every device, token, and mailbox
// that belongs to it, including the on-disk tree.
func (r *Registry) DeleteUser(userKey []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[string(userKey)]
	if !ok {
		return apperr.NotFound("unknown user")
	}
	for _, d := range user.Devices {
		delete(r.deviceOwner, string(d.DeviceKey))
		delete(r.authTokens, string(d.DeviceKey))
		delete(r.notificationTokens, string(d.DeviceKey))
		delete(r.mailbox, string(d.DeviceKey))
		delete(r.oldMailbox, string(d.DeviceKey))
	}
	delete(r.users, string(userKey))
	if err := r.store.DeleteUserTree(userKey); err != nil {
		return err
	}
	r.snapshotLocked()
	return nil
}

// RegisterDevice commits newInfo, which the caller has already
// validated as exactly one appended device with all other fields
// unchanged and a strictly newer timestamp. Mints a device token and
// an empty mailbox for the appended device.
func (r *Registry) RegisterDevice(userKey []byte, newInfo wire.InternalUser) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[string(userKey)]; !ok {
		return nil, apperr.NotFound("unknown user")
	}
	newDevice := newInfo.Devices[len(newInfo.Devices)-1]
	if _, exists := r.deviceOwner[string(newDevice.DeviceKey)]; exists {
		return nil, apperr.AlreadyExists("device key already in use")
	}
	token, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, apperr.Internal("generate device token", err)
	}
	r.users[string(userKey)] = newInfo.Clone()
	r.deviceOwner[string(newDevice.DeviceKey)] = string(userKey)
	r.authTokens[string(newDevice.DeviceKey)] = token
	r.mailbox[string(newDevice.DeviceKey)] = wire.Mailbox{}
	r.snapshotLocked()
	return token, nil
}

// DeleteDevice commits newInfo, which the caller has already
// validated as exactly one removed device, and drops that device's
// token, mailbox, and prekey pool.
func (r *Registry) DeleteDevice(userKey []byte, newInfo wire.InternalUser, removedDeviceKey []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[string(userKey)]; !ok {
		return apperr.NotFound("unknown user")
	}
	r.users[string(userKey)] = newInfo.Clone()
	delete(r.deviceOwner, string(removedDeviceKey))
	delete(r.authTokens, string(removedDeviceKey))
	delete(r.notificationTokens, string(removedDeviceKey))
	delete(r.mailbox, string(removedDeviceKey))
	delete(r.oldMailbox, string(removedDeviceKey))
	// Drop the removed device's prekey pool; the pool file is removed
	// once empty (see Storage.savePreKeyList).
	if _, err := r.store.ConsumePreKeys(userKey, [][]byte{removedDeviceKey}, 1<<30); err != nil {
		return err
	}
	r.snapshotLocked()
	return nil
}

// SetPushToken stores the device's opaque 16-byte push token.
func (r *Registry) SetPushToken(deviceKey, token []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deviceOwner[string(deviceKey)]; !ok {
		return apperr.NotFound("unknown device")
	}
	r.notificationTokens[string(deviceKey)] = append([]byte(nil), token...)
	r.snapshotLocked()
	return nil
}
