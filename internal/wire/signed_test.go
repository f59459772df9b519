package wire

import (
	"testing"

	"github.com/christophhagen/RendezvousServer/internal/crypto"
)

func TestVerifySelfSignedRoundTrip(t *testing.T) {
	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	u := InternalUser{
		IdentityKey: pub,
		Name:        "alice",
		Timestamp:   1000,
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

	ok, err := VerifySelfSigned(u, pub, u.Signature)
	if err != nil {
		t.Fatalf("VerifySelfSigned: %v", err)
	}
	if !ok {
		t.Fatal("valid signature rejected")
	}

	u.Name = "mallory"
	ok, err = VerifySelfSigned(u, pub, u.Signature)
	if err != nil {
		t.Fatalf("VerifySelfSigned: %v", err)
	}
	if ok {
		t.Fatal("signature verified after payload mutation")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	topic := Topic{
		TopicID:     []byte("123456789012"),
		Application: "chat",
		Members: []MemberInfo{
			{SignatureKey: []byte("sigkey"), Role: RoleAdmin},
		},
	}
	b, err := Marshal(topic)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Topic
	if err := Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(got.TopicID) != string(topic.TopicID) || got.Application != topic.Application {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func FuzzVerifySelfSigned(f *testing.F) {
	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		f.Fatalf("GenerateKey: %v", err)
	}
	u := InternalUser{IdentityKey: pub, Name: "seed", Timestamp: 1}
	b, _ := u.SignedBytes()
	sig, _ := crypto.Sign(priv, b)
	f.Add(u.Name, u.Timestamp, sig)

	f.Fuzz(func(t *testing.T, name string, ts int64, sig []byte) {
		rec := InternalUser{IdentityKey: pub, Name: name, Timestamp: ts}
		ok, err := VerifySelfSigned(rec, pub, sig)
		if err != nil {
			return
		}
		if ok {
			want, _ := rec.SignedBytes()
			wantSig, _ := crypto.Sign(priv, want)
			if string(wantSig) != string(sig) {
				t.Fatalf("accepted a signature that does not match the expected one for %+v", rec)
			}
		}
	})
}
