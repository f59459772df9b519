package registry

import (
	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// AddDevicePreKeys appends keys to deviceKey's pool and updates its
// mailbox's RemainingPreKeys counter.
func (r *Registry) AddDevicePreKeys(userKey, deviceKey []byte, keys []wire.DevicePrekey) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining, err := r.store.StorePreKeys(userKey, deviceKey, keys)
	if err != nil {
		return 0, err
	}
	mb := r.mailbox[string(deviceKey)]
	mb.RemainingPreKeys = uint32(remaining)
	r.mailbox[string(deviceKey)] = mb
	r.snapshotLocked()
	return remaining, nil
}

// GetDevicePreKeys consumes up to count prekeys from each of the
// target user's devices and updates their RemainingPreKeys counters.
func (r *Registry) GetDevicePreKeys(userKey []byte, count int) (wire.DevicePreKeyBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[string(userKey)]
	if !ok {
		return wire.DevicePreKeyBundle{}, apperr.NotFound("unknown user")
	}
	deviceKeys := make([][]byte, 0, len(user.Devices))
	for _, d := range user.Devices {
		deviceKeys = append(deviceKeys, d.DeviceKey)
	}
	bundle, err := r.store.ConsumePreKeys(userKey, deviceKeys, count)
	if err != nil {
		return wire.DevicePreKeyBundle{}, err
	}
	for _, share := range bundle.Devices {
		mb := r.mailbox[string(share.DeviceKey)]
		if mb.RemainingPreKeys >= uint32(len(share.Keys)) {
			mb.RemainingPreKeys -= uint32(len(share.Keys))
		} else {
			mb.RemainingPreKeys = 0
		}
		r.mailbox[string(share.DeviceKey)] = mb
	}
	r.snapshotLocked()
	return bundle, nil
}

// AddTopicKeys appends new topic keys to (userKey, application)'s
// queue, delivers the per-recipient-device encrypted copies from the
// bundle into each device's mailbox, and sets RemainingTopicKeys of
// every device of the user in that application to the new queue length.
func (r *Registry) AddTopicKeys(bundle wire.TopicKeyBundle) error {
	var pending []pendingNotify
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		total, err := r.store.StoreTopicKeys(bundle.UserKey, bundle.Application, bundle.Keys)
		if err != nil {
			return err
		}
		user, ok := r.users[string(bundle.UserKey)]
		if !ok {
			return apperr.NotFound("unknown user")
		}
		for _, dm := range bundle.Messages {
			mb := r.mailbox[string(dm.DeviceKey)]
			mb.TopicKeyMessages = append(mb.TopicKeyMessages, dm.Messages...)
			r.mailbox[string(dm.DeviceKey)] = mb
			pending = append(pending, r.pendingFor(user, string(dm.DeviceKey), "topic-key"))
		}
		for _, d := range user.Devices {
			if d.Application != bundle.Application {
				continue
			}
			mb := r.mailbox[string(d.DeviceKey)]
			mb.RemainingTopicKeys = uint32(total)
			r.mailbox[string(d.DeviceKey)] = mb
		}
		r.snapshotLocked()
		return nil
	}()
	if err != nil {
		return err
	}
	r.dispatch(pending)
	return nil
}

// GetTopicKey consumes one topic key from receiver's (application)
// queue and decrements RemainingTopicKeys for all of receiver's devices
// in that application.
func (r *Registry) GetTopicKey(receiver []byte, appID string) (wire.TopicKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, err := r.store.ConsumeTopicKey(receiver, appID)
	if err != nil {
		return wire.TopicKey{}, err
	}
	user, ok := r.users[string(receiver)]
	if ok {
		for _, d := range user.Devices {
			if d.Application != appID {
				continue
			}
			mb := r.mailbox[string(d.DeviceKey)]
			if mb.RemainingTopicKeys > 0 {
				mb.RemainingTopicKeys--
			}
			r.mailbox[string(d.DeviceKey)] = mb
		}
	}
	r.snapshotLocked()
	return key, nil
}

// GetTopicKeys is the bulk form of GetTopicKey: one key per listed
// user, skipping any whose queue is empty.
func (r *Registry) GetTopicKeys(receivers [][]byte, appID string) (wire.TopicKeyResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var resp wire.TopicKeyResponse
	for _, receiver := range receivers {
		key, err := r.store.ConsumeTopicKey(receiver, appID)
		if err != nil {
			continue
		}
		if user, ok := r.users[string(receiver)]; ok {
			for _, d := range user.Devices {
				if d.Application != appID {
					continue
				}
				mb := r.mailbox[string(d.DeviceKey)]
				if mb.RemainingTopicKeys > 0 {
					mb.RemainingTopicKeys--
				}
				r.mailbox[string(d.DeviceKey)] = mb
			}
		}
		resp.Entries = append(resp.Entries, wire.TopicKeyEntry{UserKey: append([]byte(nil), receiver...), Key: key})
	}
	r.snapshotLocked()
	return resp, nil
}
