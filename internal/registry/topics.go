package registry

import (
	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// CreateTopic seeds topicId's TopicState and fans the topic record
// out to every member's active devices except the creator's.
func (r *Registry) CreateTopic(topic wire.Topic, creatorDeviceKey []byte) error {
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, exists := r.topics[string(topic.TopicID)]; exists {
			return apperr.AlreadyExists("topic already exists")
		}
		if r.store.TopicExists(topic.TopicID) {
			return apperr.AlreadyExists("topic already exists in storage")
		}
		for _, m := range topic.Members {
			if m.CreationInfo == nil {
				continue
			}
			if _, ok := r.users[string(m.CreationInfo.UserKey)]; !ok {
				return apperr.Invalid("topic lists an unknown user")
			}
		}
		r.topics[string(topic.TopicID)] = wire.TopicState{
			Info: topic,
			Chain: wire.ChainState{
				ChainIndex: 0,
				Output:     append([]byte(nil), topic.TopicID...),
			},
		}
		r.snapshotLocked()
		return nil
	}()
	if err != nil {
		return err
	}
	r.EnqueueTopicUpdate(topic, creatorDeviceKey)
	return nil
}

// AddMessage commits update to topicID's chain and fans the
// resulting Message out to every member's devices except the
// sender's. Two concurrent calls on the same topic are serialized by
// the registry lock, so the loser always observes the winner's new
// chain state before computing its own output.
func (r *Registry) AddMessage(topicID []byte, update wire.TopicUpdate, senderDeviceKey []byte) (wire.ChainState, error) {
	var pending []pendingNotify
	var result wire.ChainState
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		state, ok := r.topics[string(topicID)]
		if !ok {
			return apperr.NotFound("unknown topic")
		}
		newIndex := state.Chain.ChainIndex + 1
		newOutput, err := r.store.AppendUpdate(topicID, update, newIndex, state.Chain.Output)
		if err != nil {
			return err
		}
		newChain := wire.ChainState{ChainIndex: newIndex, Output: newOutput[:]}
		state.Chain = newChain
		r.topics[string(topicID)] = state

		for _, m := range state.Info.Members {
			if m.CreationInfo == nil {
				continue
			}
			user, ok := r.users[string(m.CreationInfo.UserKey)]
			if !ok {
				continue
			}
			for _, d := range activeDevicesFor(user, state.Info.Application, senderDeviceKey) {
				mb := r.mailbox[string(d.DeviceKey)]
				mb.Messages = append(mb.Messages, wire.Message{
					TopicID: append([]byte(nil), topicID...),
					Chain:   newChain,
					Content: update,
				})
				r.mailbox[string(d.DeviceKey)] = mb
				pending = append(pending, r.pendingFor(user, string(d.DeviceKey), "message"))
			}
		}
		result = newChain
		r.snapshotLocked()
		return nil
	}()
	if err != nil {
		return wire.ChainState{}, err
	}
	r.dispatch(pending)
	return result, nil
}

// GetMessagesForDevice drains deviceKey's mailbox and emits delivery
// receipts to every member (the draining user included) of every
// topic touched by the drained messages, advertising the highest
// chain index seen per topic.
func (r *Registry) GetMessagesForDevice(userKey, deviceKey []byte) (wire.DeviceDownload, error) {
	mb, err := r.Drain(deviceKey)
	if err != nil {
		return wire.DeviceDownload{}, err
	}

	maxIndexByTopic := map[string]uint32{}
	for _, msg := range mb.Messages {
		k := string(msg.TopicID)
		if msg.Chain.ChainIndex > maxIndexByTopic[k] {
			maxIndexByTopic[k] = msg.Chain.ChainIndex
		}
	}
	for topicIDStr, maxIndex := range maxIndexByTopic {
		topicID := []byte(topicIDStr)
		state, ok := r.GetTopicState(topicID)
		if !ok {
			continue
		}
		var recipients [][]byte
		for _, m := range state.Info.Members {
			if m.CreationInfo != nil {
				recipients = append(recipients, m.CreationInfo.UserKey)
			}
		}
		r.EnqueueDeliveryReceipts(recipients, userKey, topicID, maxIndex, state.Info.Application)
	}

	return wire.DeviceDownload{
		TopicUpdates:       mb.TopicUpdates,
		TopicKeyMessages:   mb.TopicKeyMessages,
		Messages:           mb.Messages,
		Receipts:           mb.Receipts,
		RemainingTopicKeys: mb.RemainingTopicKeys,
		RemainingPreKeys:   mb.RemainingPreKeys,
	}, nil
}

// GetTopicState returns a copy of topicID's current state.
func (r *Registry) GetTopicState(topicID []byte) (wire.TopicState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.topics[string(topicID)]
	return s, ok
}

// IsTopicMember reports whether userKey holds any role in topicID.
func (r *Registry) IsTopicMember(topicID, userKey []byte) bool {
	state, ok := r.GetTopicState(topicID)
	if !ok {
		return false
	}
	for _, m := range state.Info.Members {
		if m.CreationInfo != nil && string(m.CreationInfo.UserKey) == string(userKey) {
			return true
		}
	}
	return false
}

// GetMessagesInRange returns the contiguous slice of committed
// updates [start, start+count) bounded by the topic's current chain
// length.
func (r *Registry) GetMessagesInRange(topicID []byte, start, count uint32) (wire.MessageChain, error) {
	state, ok := r.GetTopicState(topicID)
	if !ok {
		return wire.MessageChain{}, apperr.NotFound("unknown topic")
	}
	total := state.Chain.ChainIndex + 1
	end := start + count
	if end > total {
		end = total
	}
	if start >= end {
		return wire.MessageChain{StartIndex: start}, nil
	}
	updates, err := r.store.ReadUpdates(topicID, start, end-start)
	if err != nil {
		return wire.MessageChain{}, err
	}
	return wire.MessageChain{StartIndex: start, Updates: updates}, nil
}

// GetFile returns a topic file's bytes if userKey is a member.
func (r *Registry) GetFile(userKey, topicID, messageID []byte) ([]byte, error) {
	if !r.IsTopicMember(topicID, userKey) {
		return nil, apperr.Unauthorized("not a member of this topic")
	}
	return r.store.GetFile(topicID, messageID)
}

// FileExists reports whether a file blob is already stored under
// topicID at fileID.
func (r *Registry) FileExists(topicID, fileID []byte) bool {
	return r.store.FileExists(topicID, fileID)
}

// StoreMessageFiles persists each uploaded file under topicID,
// verifying its hash matches the claimed reference.
func (r *Registry) StoreMessageFiles(topicID []byte, files []wire.FileData) error {
	for _, f := range files {
		sum := crypto.Hash(f.Data)
		if string(sum[:]) != string(f.Hash) {
			return apperr.Invalid("uploaded file hash mismatch")
		}
		if err := r.store.StoreFile(topicID, f.ID, f.Data); err != nil {
			return err
		}
	}
	return nil
}
