package validator

import (
	"bytes"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// CheckDeviceAdd verifies that newInfo is oldInfo with exactly one
// device appended at the tail, every other field unchanged, and a
// strictly newer timestamp than oldInfo's.
func CheckDeviceAdd(oldInfo, newInfo wire.InternalUser) error {
	if err := checkUnchangedFields(oldInfo, newInfo); err != nil {
		return err
	}
	if len(newInfo.Devices) != len(oldInfo.Devices)+1 {
		return apperr.Invalid("device add must append exactly one device")
	}
	for i, d := range oldInfo.Devices {
		if !bytes.Equal(d.DeviceKey, newInfo.Devices[i].DeviceKey) {
			return apperr.Invalid("device add must not reorder existing devices")
		}
	}
	if newInfo.Timestamp <= oldInfo.Timestamp {
		return apperr.Outdated("timestamp must be strictly newer than the prior record")
	}
	return nil
}

// CheckDeviceRemove verifies that newInfo is oldInfo with exactly one
// device removed, every other field unchanged, and a strictly newer
// timestamp than oldInfo's. Returns the removed device key.
func CheckDeviceRemove(oldInfo, newInfo wire.InternalUser) ([]byte, error) {
	if err := checkUnchangedFields(oldInfo, newInfo); err != nil {
		return nil, err
	}
	if len(newInfo.Devices) != len(oldInfo.Devices)-1 {
		return nil, apperr.Invalid("device remove must drop exactly one device")
	}
	newSet := make(map[string]bool, len(newInfo.Devices))
	for _, d := range newInfo.Devices {
		newSet[string(d.DeviceKey)] = true
	}
	var removed []byte
	for _, d := range oldInfo.Devices {
		if !newSet[string(d.DeviceKey)] {
			if removed != nil {
				return nil, apperr.Invalid("device remove must drop exactly one device")
			}
			removed = d.DeviceKey
		}
	}
	if removed == nil {
		return nil, apperr.Invalid("device remove must drop exactly one device")
	}
	if newInfo.Timestamp <= oldInfo.Timestamp {
		return nil, apperr.Outdated("timestamp must be strictly newer than the prior record")
	}
	return removed, nil
}

func checkUnchangedFields(oldInfo, newInfo wire.InternalUser) error {
	if oldInfo.Name != newInfo.Name {
		return apperr.Invalid("name must not change")
	}
	if oldInfo.CreationTime != newInfo.CreationTime {
		return apperr.Invalid("creationTime must not change")
	}
	if oldInfo.NotificationServer != newInfo.NotificationServer {
		return apperr.Invalid("notificationServer must not change")
	}
	if !bytes.Equal(oldInfo.IdentityKey, newInfo.IdentityKey) {
		return apperr.Invalid("identityKey must not change")
	}
	return nil
}

// CheckTopicCreation validates a Topic record's structural invariants:
// topicId length, creator index range and role, per-member
// creation-info signatures, and membership of the authenticating user.
func CheckTopicCreation(topic wire.Topic, authenticatedUserKey []byte, userExists func([]byte) bool) error {
	if len(topic.TopicID) != 12 {
		return apperr.Invalid("topicId must be 12 bytes")
	}
	if topic.CreationTime != topic.Timestamp {
		return apperr.Invalid("creationTime must equal timestamp on creation")
	}
	if int(topic.IndexOfMessageCreator) >= len(topic.Members) {
		return apperr.Invalid("creator index out of range")
	}
	creator := topic.Members[topic.IndexOfMessageCreator]
	if creator.Role != wire.RoleAdmin {
		return apperr.Invalid("creator must hold the admin role")
	}
	if creator.CreationInfo == nil || !bytes.Equal(creator.CreationInfo.UserKey, authenticatedUserKey) {
		return apperr.Invalid("creator's creation-info must match the authenticated user")
	}
	for _, m := range topic.Members {
		if m.Role != wire.RoleAdmin && m.Role != wire.RoleParticipant && m.Role != wire.RoleObserver {
			return apperr.Invalid("member has an invalid role")
		}
		if m.CreationInfo == nil {
			return apperr.Invalid("member is missing creation-info")
		}
		if !userExists(m.CreationInfo.UserKey) {
			return apperr.Invalid("topic lists an unknown user")
		}
		signed := append(append([]byte{}, m.SignatureKey...), m.CreationInfo.EncryptionKey...)
		if !verifyRaw(m.CreationInfo.UserKey, signed, m.CreationInfo.Signature) {
			return apperr.BadSignature("member creation-info signature does not verify")
		}
	}
	sig := topic.Signature
	if err := CheckSelfSigned(topic, creator.SignatureKey, sig); err != nil {
		return err
	}
	return CheckFreshness(topic.Timestamp)
}

// CheckTopicUpdate validates a TopicUpdate's structural invariants
// against the topic's current member list, plus the accompanying
// files' shapes. uploadedHashes carries the SHA-256 of every file
// uploaded alongside this same update, for files not previously stored.
func CheckTopicUpdate(update wire.TopicUpdate, members []wire.MemberInfo, uploaded map[string][]byte, previouslyStored func([]byte) bool) error {
	if int(update.IndexInMemberList) >= len(members) {
		return apperr.Invalid("author index out of range")
	}
	author := members[update.IndexInMemberList]
	if author.Role != wire.RoleAdmin && author.Role != wire.RoleParticipant {
		return apperr.Invalid("author role may not post updates")
	}
	if len(update.Metadata) >= 100 {
		return apperr.Invalid("metadata must be shorter than 100 bytes")
	}
	for _, f := range update.Files {
		if len(f.ID) != 12 {
			return apperr.Invalid("file id must be 12 bytes")
		}
		if len(f.Hash) != 32 {
			return apperr.Invalid("file hash must be 32 bytes")
		}
		if len(f.Tag) != 16 {
			return apperr.Invalid("file tag must be 16 bytes")
		}
		if hash, ok := uploaded[string(f.ID)]; ok {
			if !bytes.Equal(hash, f.Hash) {
				return apperr.Invalid("uploaded file hash does not match its reference")
			}
			continue
		}
		if !previouslyStored(f.ID) {
			return apperr.Invalid("referenced file was neither previously uploaded nor included now")
		}
	}
	return CheckSelfSigned(update, author.SignatureKey, update.Signature)
}

func verifyRaw(key, msg, sig []byte) bool {
	ok, err := wire.VerifySelfSigned(rawSignable{msg}, key, sig)
	return err == nil && ok
}

type rawSignable struct{ b []byte }

func (r rawSignable) SignedBytes() ([]byte, error) { return r.b, nil }
