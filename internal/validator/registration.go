package validator

import (
	"net/url"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// maxApplicationLength is spec.md's limit on Device.Application.
const maxApplicationLength = 10

// CheckRegistrationBundle validates everything about a
// RegistrationBundle that does not require registry state (the pin
// check is the registry's gate, run inside
// Registry.RegisterUserWithDeviceAndKeys after this passes).
func CheckRegistrationBundle(bundle wire.RegistrationBundle) error {
	info := bundle.Info
	if len(info.Devices) != 1 {
		return apperr.Invalid("registration must carry exactly one device")
	}
	device := info.Devices[0]
	if len(device.Application) > maxApplicationLength {
		return apperr.Invalid("application id exceeds 10 characters")
	}
	if len(info.Name) == 0 || len(info.Name) > 32 {
		return apperr.Invalid("name must be 1 to 32 characters")
	}
	if info.NotificationServer != "" {
		if _, err := url.Parse(info.NotificationServer); err != nil {
			return apperr.Invalid("notificationServer does not parse as a URL")
		}
	}
	if err := CheckFreshness(info.Timestamp); err != nil {
		return err
	}
	if err := CheckSelfSigned(info, info.IdentityKey, info.Signature); err != nil {
		return err
	}
	for _, k := range bundle.PreKeys {
		if err := CheckKeySigned(k, device.DeviceKey, k.Signature); err != nil {
			return apperr.BadSignature("prekey signature does not verify under the device key")
		}
	}
	for _, k := range bundle.TopicKeys {
		if err := CheckKeySigned(k, info.IdentityKey, k.Signature); err != nil {
			return apperr.BadSignature("topic key signature does not verify under the identity key")
		}
	}
	return nil
}

// CheckDevicePreKeys validates a batch of prekeys against their
// owning device key.
func CheckDevicePreKeys(keys []wire.DevicePrekey, deviceKey []byte) error {
	for _, k := range keys {
		if err := CheckKeySigned(k, deviceKey, k.Signature); err != nil {
			return apperr.BadSignature("prekey signature does not verify under the device key")
		}
	}
	return nil
}

// CheckTopicKeys validates a batch of topic keys against their owning
// identity key.
func CheckTopicKeys(keys []wire.TopicKey, identityKey []byte) error {
	for _, k := range keys {
		if err := CheckKeySigned(k, identityKey, k.Signature); err != nil {
			return apperr.BadSignature("topic key signature does not verify under the identity key")
		}
	}
	return nil
}

// CheckTopicKeyBundleShape verifies addTopicKeys' fan-out invariant:
// the bundle's recipient devices must equal the user's own devices in
// Application minus the uploader, and each recipient's message list
// must name exactly the set of newly uploaded signature keys.
func CheckTopicKeyBundleShape(bundle wire.TopicKeyBundle, userDevices []wire.Device) error {
	wantRecipients := map[string]bool{}
	for _, d := range userDevices {
		if d.Application != bundle.Application {
			continue
		}
		if string(d.DeviceKey) == string(bundle.DeviceKey) {
			continue
		}
		wantRecipients[string(d.DeviceKey)] = true
	}
	gotRecipients := map[string]bool{}
	for _, dm := range bundle.Messages {
		gotRecipients[string(dm.DeviceKey)] = true
	}
	if len(wantRecipients) != len(gotRecipients) {
		return apperr.BadKeyUpload("recipient device set does not match the user's other devices")
	}
	for k := range wantRecipients {
		if !gotRecipients[k] {
			return apperr.BadKeyUpload("missing receiver device in topic key upload")
		}
	}
	wantKeys := map[string]bool{}
	for _, k := range bundle.Keys {
		wantKeys[string(k.SignatureKey)] = true
	}
	for _, dm := range bundle.Messages {
		gotKeys := map[string]bool{}
		for _, m := range dm.Messages {
			gotKeys[string(m.SignatureKey)] = true
		}
		if len(gotKeys) != len(wantKeys) {
			return apperr.BadKeyUpload("recipient device is missing a per-key message")
		}
		for k := range wantKeys {
			if !gotKeys[k] {
				return apperr.BadKeyUpload("recipient device is missing a per-key message")
			}
		}
	}
	return nil
}
