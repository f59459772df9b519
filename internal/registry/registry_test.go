package registry

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/push"
	"github.com/christophhagen/RendezvousServer/internal/storage"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	r, err := New(store, push.Noop{}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func signedUser(t *testing.T, name string, device wire.Device) (wire.InternalUser, []byte) {
	t.Helper()
	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	u := wire.InternalUser{
		IdentityKey:  pub,
		CreationTime: 1,
		Name:         name,
		Devices:      []wire.Device{device},
		Timestamp:    time.Now().Unix(),
	}
	b, err := u.SignedBytes()
	if err != nil {
		t.Fatalf("SignedBytes: %v", err)
	}
	sig, err := crypto.Sign(priv, b)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	u.Signature = sig
	return u, priv
}

func TestHappyPathRegistration(t *testing.T) {
	r := newTestRegistry(t)
	allowed, err := r.AllowUser("alice")
	if err != nil {
		t.Fatalf("AllowUser: %v", err)
	}

	device := wire.Device{DeviceKey: []byte("device-key-0000000000000000000"), IsActive: true, Application: "chat"}
	user, _ := signedUser(t, "alice", device)

	bundle := wire.RegistrationBundle{
		Info:    user,
		Pin:     allowed.Pin,
		PreKeys: []wire.DevicePrekey{{PreKey: []byte("k1")}, {PreKey: []byte("k2")}},
	}
	token, err := r.RegisterUserWithDeviceAndKeys(bundle)
	if err != nil {
		t.Fatalf("RegisterUserWithDeviceAndKeys: %v", err)
	}
	if len(token) != 16 {
		t.Fatalf("expected a 16-byte device token, got %d bytes", len(token))
	}

	if _, err := r.AllowUser("alice"); err == nil {
		t.Fatal("expected AllowUser to reject a name that is already registered")
	}

	got, ok := r.GetUser(user.IdentityKey)
	if !ok {
		t.Fatal("registered user not found")
	}
	if got.Name != "alice" {
		t.Fatalf("unexpected user name %q", got.Name)
	}

	mb, err := r.Drain(device.DeviceKey)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if mb.RemainingPreKeys != 2 {
		t.Fatalf("RemainingPreKeys = %d, want 2", mb.RemainingPreKeys)
	}
}

func TestWrongPinLockout(t *testing.T) {
	r := newTestRegistry(t)
	allowed, err := r.AllowUser("bob")
	if err != nil {
		t.Fatalf("AllowUser: %v", err)
	}
	wrongPin := (allowed.Pin + 1) % 100000

	device := wire.Device{DeviceKey: []byte("device-key-0000000000000000001"), IsActive: true, Application: "chat"}
	user, _ := signedUser(t, "bob", device)

	for i := 0; i < 3; i++ {
		bundle := wire.RegistrationBundle{Info: user, Pin: wrongPin}
		if _, err := r.RegisterUserWithDeviceAndKeys(bundle); err == nil {
			t.Fatalf("attempt %d: expected AuthenticationFailed for a wrong pin", i)
		}
	}

	bundle := wire.RegistrationBundle{Info: user, Pin: allowed.Pin}
	if _, err := r.RegisterUserWithDeviceAndKeys(bundle); err == nil {
		t.Fatal("expected the fourth attempt to fail even with the correct pin")
	}
}

func TestPreKeyDepletion(t *testing.T) {
	r := newTestRegistry(t)
	allowed, _ := r.AllowUser("carol")
	d1 := wire.Device{DeviceKey: []byte("device-key-0000000000000000002"), IsActive: true, Application: "chat"}
	user, _ := signedUser(t, "carol", d1)
	if _, err := r.RegisterUserWithDeviceAndKeys(wire.RegistrationBundle{Info: user, Pin: allowed.Pin}); err != nil {
		t.Fatalf("RegisterUserWithDeviceAndKeys: %v", err)
	}

	d2 := wire.Device{DeviceKey: []byte("device-key-0000000000000000003"), IsActive: true, Application: "chat"}
	newInfo := user
	newInfo.Devices = append(append([]wire.Device{}, user.Devices...), d2)
	newInfo.Timestamp = user.Timestamp + 1
	if _, err := r.RegisterDevice(user.IdentityKey, newInfo); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	if _, err := r.AddDevicePreKeys(user.IdentityKey, d1.DeviceKey, []wire.DevicePrekey{{PreKey: []byte("a")}, {PreKey: []byte("b")}, {PreKey: []byte("c")}}); err != nil {
		t.Fatalf("AddDevicePreKeys d1: %v", err)
	}
	if _, err := r.AddDevicePreKeys(user.IdentityKey, d2.DeviceKey, []wire.DevicePrekey{{PreKey: []byte("d")}, {PreKey: []byte("e")}, {PreKey: []byte("f")}, {PreKey: []byte("g")}, {PreKey: []byte("h")}}); err != nil {
		t.Fatalf("AddDevicePreKeys d2: %v", err)
	}

	// GetDevicePreKeys consumes up to count keys from each device
	// independently: d1 has 3 (all taken), d2 has 5 (all taken).
	bundle, err := r.GetDevicePreKeys(user.IdentityKey, 5)
	if err != nil {
		t.Fatalf("GetDevicePreKeys: %v", err)
	}
	total := 0
	for _, share := range bundle.Devices {
		total += len(share.Keys)
	}
	if total != 8 {
		t.Fatalf("first GetDevicePreKeys total = %d, want 3+5=8", total)
	}

	bundle2, err := r.GetDevicePreKeys(user.IdentityKey, 5)
	if err != nil {
		t.Fatalf("GetDevicePreKeys second call: %v", err)
	}
	total2 := 0
	for _, share := range bundle2.Devices {
		total2 += len(share.Keys)
	}
	if total2 != 0 {
		t.Fatalf("second GetDevicePreKeys total = %d, want 0 (both pools drained)", total2)
	}
}

func TestTopicCreateAndAddMessage(t *testing.T) {
	r := newTestRegistry(t)
	allowedA, _ := r.AllowUser("alice2")
	deviceA := wire.Device{DeviceKey: []byte("device-key-00000000000000000a1"), IsActive: true, Application: "chat"}
	userA, privA := signedUser(t, "alice2", deviceA)
	if _, err := r.RegisterUserWithDeviceAndKeys(wire.RegistrationBundle{Info: userA, Pin: allowedA.Pin}); err != nil {
		t.Fatalf("register alice: %v", err)
	}

	allowedB, _ := r.AllowUser("bob2")
	deviceB := wire.Device{DeviceKey: []byte("device-key-00000000000000000b1"), IsActive: true, Application: "chat"}
	userB, _ := signedUser(t, "bob2", deviceB)
	if _, err := r.RegisterUserWithDeviceAndKeys(wire.RegistrationBundle{Info: userB, Pin: allowedB.Pin}); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	topicID := []byte("topic-id-12b")
	topic := wire.Topic{
		TopicID:               topicID,
		Application:           "chat",
		IndexOfMessageCreator: 0,
		Members: []wire.MemberInfo{
			{SignatureKey: []byte("alice-topic-sig"), Role: wire.RoleAdmin, CreationInfo: &wire.CreationInfo{UserKey: userA.IdentityKey}},
			{SignatureKey: []byte("bob-topic-sig"), Role: wire.RoleParticipant, CreationInfo: &wire.CreationInfo{UserKey: userB.IdentityKey}},
		},
	}
	if err := r.CreateTopic(topic, deviceA.DeviceKey); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	mbBob, err := r.Drain(deviceB.DeviceKey)
	if err != nil {
		t.Fatalf("Drain bob: %v", err)
	}
	if len(mbBob.TopicUpdates) != 1 {
		t.Fatalf("expected bob's mailbox to contain the topic record, got %d entries", len(mbBob.TopicUpdates))
	}

	update := wire.TopicUpdate{IndexInMemberList: 0}
	sig, err := crypto.Sign(privA, mustSignedBytes(t, update))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	update.Signature = sig

	chain, err := r.AddMessage(topicID, update, deviceA.DeviceKey)
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if chain.ChainIndex != 1 {
		t.Fatalf("ChainIndex = %d, want 1", chain.ChainIndex)
	}
	want := crypto.HashChain(topicID, update.Signature)
	if string(chain.Output) != string(want[:]) {
		t.Fatalf("chain output mismatch")
	}

	mbBob2, err := r.Drain(deviceB.DeviceKey)
	if err != nil {
		t.Fatalf("Drain bob after message: %v", err)
	}
	if len(mbBob2.Messages) != 1 {
		t.Fatalf("expected bob to receive exactly one message, got %d", len(mbBob2.Messages))
	}
}

func mustSignedBytes(t *testing.T, u wire.TopicUpdate) []byte {
	t.Helper()
	b, err := u.SignedBytes()
	if err != nil {
		t.Fatalf("SignedBytes: %v", err)
	}
	return b
}
