package storage

import (
	"testing"

	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestPreKeyStoreConsumeRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	userKey := []byte("user-key-0000000000000000000000")
	deviceKey := []byte("device-key-00000000000000000000")

	n, err := s.StorePreKeys(userKey, deviceKey, []wire.DevicePrekey{
		{PreKey: []byte("k1")}, {PreKey: []byte("k2")}, {PreKey: []byte("k3")},
	})
	if err != nil || n != 3 {
		t.Fatalf("StorePreKeys: n=%d err=%v", n, err)
	}

	bundle, err := s.ConsumePreKeys(userKey, [][]byte{deviceKey}, 2)
	if err != nil {
		t.Fatalf("ConsumePreKeys: %v", err)
	}
	if len(bundle.Devices) != 1 || len(bundle.Devices[0].Keys) != 2 {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}

	bundle2, err := s.ConsumePreKeys(userKey, [][]byte{deviceKey}, 2)
	if err != nil {
		t.Fatalf("ConsumePreKeys second call: %v", err)
	}
	if len(bundle2.Devices[0].Keys) != 1 {
		t.Fatalf("expected exactly one remaining key, got %d", len(bundle2.Devices[0].Keys))
	}

	bundle3, err := s.ConsumePreKeys(userKey, [][]byte{deviceKey}, 5)
	if err != nil {
		t.Fatalf("ConsumePreKeys third call: %v", err)
	}
	if len(bundle3.Devices[0].Keys) != 0 {
		t.Fatalf("expected an empty pool, got %d keys", len(bundle3.Devices[0].Keys))
	}
}

func TestTopicKeyQueueIsLIFOFromTail(t *testing.T) {
	s := newTestStorage(t)
	userKey := []byte("user-key-0000000000000000000000")

	_, err := s.StoreTopicKeys(userKey, "chat", []wire.TopicKey{
		{SignatureKey: []byte("a")},
		{SignatureKey: []byte("b")},
	})
	if err != nil {
		t.Fatalf("StoreTopicKeys: %v", err)
	}

	first, err := s.ConsumeTopicKey(userKey, "chat")
	if err != nil {
		t.Fatalf("ConsumeTopicKey: %v", err)
	}
	if string(first.SignatureKey) != "b" {
		t.Fatalf("expected tail key 'b' first, got %q", first.SignatureKey)
	}

	second, err := s.ConsumeTopicKey(userKey, "chat")
	if err != nil {
		t.Fatalf("ConsumeTopicKey: %v", err)
	}
	if string(second.SignatureKey) != "a" {
		t.Fatalf("expected 'a' second, got %q", second.SignatureKey)
	}

	if _, err := s.ConsumeTopicKey(userKey, "chat"); err == nil {
		t.Fatal("expected ResourceNotAvailable on an empty queue")
	}
}

func TestAppendUpdateChainsHashesAcrossSegments(t *testing.T) {
	s := newTestStorage(t)
	topicID := []byte("topic-id-12b")
	prior := append([]byte(nil), topicID...)

	for i := uint32(1); i <= 1500; i++ {
		sig := []byte{byte(i), byte(i >> 8)}
		newOutput, err := s.AppendUpdate(topicID, wire.TopicUpdate{Signature: sig}, i, prior)
		if err != nil {
			t.Fatalf("AppendUpdate(%d): %v", i, err)
		}
		want := crypto.HashChain(prior, sig)
		if newOutput != want {
			t.Fatalf("AppendUpdate(%d) = %x, want %x", i, newOutput, want)
		}
		prior = newOutput[:]
	}

	updates, err := s.ReadUpdates(topicID, 0, 1500)
	if err != nil {
		t.Fatalf("ReadUpdates: %v", err)
	}
	if len(updates) != 1500 {
		t.Fatalf("expected 1500 updates across segments, got %d", len(updates))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	if _, ok, err := s.ReadSnapshot(); err != nil || ok {
		t.Fatalf("expected no snapshot initially, ok=%v err=%v", ok, err)
	}
	data := []byte("snapshot-bytes")
	if err := s.WriteSnapshot(data); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, ok, err := s.ReadSnapshot()
	if err != nil || !ok {
		t.Fatalf("ReadSnapshot: ok=%v err=%v", ok, err)
	}
	if string(got) != string(data) {
		t.Fatalf("ReadSnapshot = %q, want %q", got, data)
	}
}

func TestStoreFileRejectsOverwrite(t *testing.T) {
	s := newTestStorage(t)
	topicID := []byte("topic-id-12b")
	messageID := []byte("message-id-1")
	if err := s.StoreFile(topicID, messageID, []byte("data")); err != nil {
		t.Fatalf("StoreFile: %v", err)
	}
	if err := s.StoreFile(topicID, messageID, []byte("data2")); err == nil {
		t.Fatal("expected an error storing a file at an already-used address")
	}
	got, err := s.GetFile(topicID, messageID)
	if err != nil || string(got) != "data" {
		t.Fatalf("GetFile = %q, err=%v", got, err)
	}
}

func FuzzAppendUpdateChain(f *testing.F) {
	f.Add([]byte("sig-a"), []byte("sig-b"))
	f.Fuzz(func(t *testing.T, sigA, sigB []byte) {
		s := newTestStorage(t)
		topicID := []byte("topic-id-12b")

		out1, err := s.AppendUpdate(topicID, wire.TopicUpdate{Signature: sigA}, 1, topicID)
		if err != nil {
			t.Fatalf("AppendUpdate 1: %v", err)
		}
		if out1 != crypto.HashChain(topicID, sigA) {
			t.Fatal("chain output diverged from direct hash on first update")
		}

		out2, err := s.AppendUpdate(topicID, wire.TopicUpdate{Signature: sigB}, 2, out1[:])
		if err != nil {
			t.Fatalf("AppendUpdate 2: %v", err)
		}
		if out2 != crypto.HashChain(out1[:], sigB) {
			t.Fatal("chain output diverged from direct hash on second update")
		}
	})
}
