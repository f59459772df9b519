package registry

import (
	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// pendingNotify is a push call deferred until after the registry
// lock is released, per the concurrency model's rule that the push
// adapter must never be invoked while holding the lock.
type pendingNotify struct {
	notificationServer string
	token              []byte
	hint                string
}

func (r *Registry) pendingFor(user wire.InternalUser, deviceKeyStr string, hint string) pendingNotify {
	return pendingNotify{
		notificationServer: user.NotificationServer,
		token:              append([]byte(nil), r.notificationTokens[deviceKeyStr]...),
		hint:               hint,
	}
}

func (r *Registry) dispatch(pending []pendingNotify) {
	for _, p := range pending {
		_ = r.notifier.Notify(p.notificationServer, p.token, p.hint)
	}
}

// activeDevicesFor returns the active devices of user restricted to
// application, excluding exceptDeviceKey if non-empty.
func activeDevicesFor(user wire.InternalUser, application string, exceptDeviceKey []byte) []wire.Device {
	var out []wire.Device
	for _, d := range user.Devices {
		if !d.IsActive || d.Application != application {
			continue
		}
		if exceptDeviceKey != nil && string(d.DeviceKey) == string(exceptDeviceKey) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// EnqueueTopicUpdate appends topic to the mailbox of every active
// device, in topic's application, of every member that carries
// creation-info, except exceptDeviceKey.
func (r *Registry) EnqueueTopicUpdate(topic wire.Topic, exceptDeviceKey []byte) {
	var pending []pendingNotify
	r.mu.Lock()
	for _, m := range topic.Members {
		if m.CreationInfo == nil {
			continue
		}
		user, ok := r.users[string(m.CreationInfo.UserKey)]
		if !ok {
			continue
		}
		for _, d := range activeDevicesFor(user, topic.Application, exceptDeviceKey) {
			mb := r.mailbox[string(d.DeviceKey)]
			mb.TopicUpdates = append(mb.TopicUpdates, topic)
			r.mailbox[string(d.DeviceKey)] = mb
			pending = append(pending, r.pendingFor(user, string(d.DeviceKey), "topic"))
		}
	}
	r.mu.Unlock()
	r.dispatch(pending)
}

// EnqueueDeliveryReceipts advances, per recipient device restricted to
// appID, the stored maximum delivered chain index for sender on
// topicID, emitting a push notification only for devices whose
// receipt entry actually advanced. recipientUserKeys must already be
// scoped to topicID's membership: this call does not re-check it.
func (r *Registry) EnqueueDeliveryReceipts(recipientUserKeys [][]byte, sender, topicID []byte, maxChainIndex uint32, appID string) {
	var pending []pendingNotify
	r.mu.Lock()
	for _, userKey := range recipientUserKeys {
		user, ok := r.users[string(userKey)]
		if !ok {
			continue
		}
		for _, d := range user.Devices {
			if !d.IsActive || d.Application != appID {
				continue
			}
			mb := r.mailbox[string(d.DeviceKey)]
			advanced := advanceReceipt(&mb, sender, topicID, maxChainIndex)
			r.mailbox[string(d.DeviceKey)] = mb
			if advanced {
				pending = append(pending, r.pendingFor(user, string(d.DeviceKey), "receipt"))
			}
		}
	}
	r.mu.Unlock()
	r.dispatch(pending)
}

func advanceReceipt(mb *wire.Mailbox, sender, topicID []byte, maxChainIndex uint32) bool {
	idx := -1
	for i, r := range mb.Receipts {
		if string(r.Sender) == string(sender) {
			idx = i
			break
		}
	}
	if idx == -1 {
		mb.Receipts = append(mb.Receipts, wire.Receipt{Sender: append([]byte(nil), sender...)})
		idx = len(mb.Receipts) - 1
	}
	for i, e := range mb.Receipts[idx].Entries {
		if string(e.TopicID) == string(topicID) {
			if maxChainIndex > e.MaxChainIndex {
				mb.Receipts[idx].Entries[i].MaxChainIndex = maxChainIndex
				return true
			}
			return false
		}
	}
	mb.Receipts[idx].Entries = append(mb.Receipts[idx].Entries, wire.ReceiptEntry{
		TopicID:       append([]byte(nil), topicID...),
		MaxChainIndex: maxChainIndex,
	})
	return true
}

// Drain returns deviceKey's current mailbox, resets it to empty while
// preserving its remaining-key counters, and keeps the drained
// snapshot available as the old mailbox for one retry.
func (r *Registry) Drain(deviceKey []byte) (wire.Mailbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.mailbox[string(deviceKey)]
	if !ok {
		return wire.Mailbox{}, apperr.NotFound("unknown device")
	}
	r.oldMailbox[string(deviceKey)] = mb
	r.mailbox[string(deviceKey)] = wire.Mailbox{
		RemainingPreKeys:   mb.RemainingPreKeys,
		RemainingTopicKeys: mb.RemainingTopicKeys,
	}
	r.snapshotLocked()
	return mb.Clone(), nil
}
