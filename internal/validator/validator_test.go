package validator

import (
	"testing"
	"time"

	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func TestCheckFreshnessAcceptsNow(t *testing.T) {
	if err := CheckFreshness(time.Now().Unix()); err != nil {
		t.Fatalf("CheckFreshness(now): %v", err)
	}
}

func TestCheckFreshnessRejectsStale(t *testing.T) {
	stale := time.Now().Add(-2 * FreshnessWindow).Unix()
	if err := CheckFreshness(stale); err == nil {
		t.Fatal("expected a stale timestamp to be rejected")
	}
}

func TestCheckFreshnessRejectsFuture(t *testing.T) {
	future := time.Now().Add(2 * FreshnessWindow).Unix()
	if err := CheckFreshness(future); err == nil {
		t.Fatal("expected a far-future timestamp to be rejected")
	}
}

func TestCheckSelfSignedRoundTrip(t *testing.T) {
	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	topic := wire.Topic{TopicID: []byte("123456789012"), Application: "chat"}
	b, err := topic.SignedBytes()
	if err != nil {
		t.Fatalf("SignedBytes: %v", err)
	}
	sig, err := crypto.Sign(priv, b)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := CheckSelfSigned(topic, pub, sig); err != nil {
		t.Fatalf("CheckSelfSigned: %v", err)
	}
	if err := CheckSelfSigned(topic, pub, append([]byte(nil), sig...)[:len(sig)-1]); err == nil {
		t.Fatal("expected a truncated signature to fail")
	}
}

func TestCheckDeviceAddRejectsFieldChange(t *testing.T) {
	old := wire.InternalUser{
		IdentityKey: []byte("id"),
		Name:        "alice",
		Devices:     []wire.Device{{DeviceKey: []byte("d1")}},
		Timestamp:   1,
	}
	changed := old
	changed.Name = "mallory"
	changed.Devices = append(append([]wire.Device{}, old.Devices...), wire.Device{DeviceKey: []byte("d2")})
	changed.Timestamp = 2
	if err := CheckDeviceAdd(old, changed); err == nil {
		t.Fatal("expected a changed name to be rejected")
	}
}

func TestCheckDeviceAddRequiresNewerTimestamp(t *testing.T) {
	old := wire.InternalUser{
		IdentityKey: []byte("id"),
		Name:        "alice",
		Devices:     []wire.Device{{DeviceKey: []byte("d1")}},
		Timestamp:   5,
	}
	newInfo := old
	newInfo.Devices = append(append([]wire.Device{}, old.Devices...), wire.Device{DeviceKey: []byte("d2")})
	newInfo.Timestamp = 5
	if err := CheckDeviceAdd(old, newInfo); err == nil {
		t.Fatal("expected a non-increasing timestamp to be rejected")
	}
}

func TestCheckDeviceAddAcceptsAppendedDevice(t *testing.T) {
	old := wire.InternalUser{
		IdentityKey: []byte("id"),
		Name:        "alice",
		Devices:     []wire.Device{{DeviceKey: []byte("d1")}},
		Timestamp:   5,
	}
	newInfo := old
	newInfo.Devices = append(append([]wire.Device{}, old.Devices...), wire.Device{DeviceKey: []byte("d2")})
	newInfo.Timestamp = 6
	if err := CheckDeviceAdd(old, newInfo); err != nil {
		t.Fatalf("CheckDeviceAdd: %v", err)
	}
}

func TestCheckDeviceRemoveFindsRemovedKey(t *testing.T) {
	old := wire.InternalUser{
		IdentityKey: []byte("id"),
		Name:        "alice",
		Devices:     []wire.Device{{DeviceKey: []byte("d1")}, {DeviceKey: []byte("d2")}},
		Timestamp:   5,
	}
	newInfo := old
	newInfo.Devices = []wire.Device{{DeviceKey: []byte("d1")}}
	newInfo.Timestamp = 6
	removed, err := CheckDeviceRemove(old, newInfo)
	if err != nil {
		t.Fatalf("CheckDeviceRemove: %v", err)
	}
	if string(removed) != "d2" {
		t.Fatalf("removed = %q, want d2", removed)
	}
}

func TestCheckRegistrationBundleRejectsMultipleDevices(t *testing.T) {
	bundle := wire.RegistrationBundle{
		Info: wire.InternalUser{
			Name:      "alice",
			Devices:   []wire.Device{{DeviceKey: []byte("d1")}, {DeviceKey: []byte("d2")}},
			Timestamp: time.Now().Unix(),
		},
	}
	if err := CheckRegistrationBundle(bundle); err == nil {
		t.Fatal("expected a bundle with more than one device to be rejected")
	}
}

func TestCheckTopicKeyBundleShapeRoundTrip(t *testing.T) {
	dOther := []byte("device-other")
	dSelf := []byte("device-self")
	userDevices := []wire.Device{
		{DeviceKey: dSelf, Application: "chat"},
		{DeviceKey: dOther, Application: "chat"},
	}
	key := wire.TopicKey{SignatureKey: []byte("sig-key")}
	bundle := wire.TopicKeyBundle{
		DeviceKey:   dSelf,
		Application: "chat",
		Keys:        []wire.TopicKey{key},
		Messages: []wire.DeviceMessages{
			{DeviceKey: dOther, Messages: []wire.TopicKeyMessage{{SignatureKey: key.SignatureKey}}},
		},
	}
	if err := CheckTopicKeyBundleShape(bundle, userDevices); err != nil {
		t.Fatalf("CheckTopicKeyBundleShape: %v", err)
	}
}

func TestCheckTopicKeyBundleShapeRejectsMissingReceiver(t *testing.T) {
	dOther := []byte("device-other")
	dSelf := []byte("device-self")
	userDevices := []wire.Device{
		{DeviceKey: dSelf, Application: "chat"},
		{DeviceKey: dOther, Application: "chat"},
	}
	bundle := wire.TopicKeyBundle{
		DeviceKey:   dSelf,
		Application: "chat",
		Keys:        []wire.TopicKey{{SignatureKey: []byte("sig-key")}},
	}
	if err := CheckTopicKeyBundleShape(bundle, userDevices); err == nil {
		t.Fatal("expected a missing receiver device to be rejected")
	}
}
