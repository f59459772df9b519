package crypto

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	msg := []byte("rendezvous topic update")
	sig, err := Sign(priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(pub, msg, sig) {
		t.Fatal("Verify rejected a valid signature")
	}
	if Verify(pub, []byte("tampered"), sig) {
		t.Fatal("Verify accepted a signature over the wrong message")
	}
}

func TestVerifyRejectsMalformedKey(t *testing.T) {
	if Verify([]byte("too short"), []byte("msg"), []byte("sig")) {
		t.Fatal("Verify accepted a malformed public key")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte("0123456789abcdef")
	b := append([]byte{}, a...)
	if !ConstantTimeEqual(a, b) {
		t.Fatal("equal slices reported unequal")
	}
	b[0] ^= 1
	if ConstantTimeEqual(a, b) {
		t.Fatal("mutated slice reported equal")
	}
	if ConstantTimeEqual(a, a[:len(a)-1]) {
		t.Fatal("slices of different length reported equal")
	}
}

func TestHashChainMatchesDirectHash(t *testing.T) {
	prior := Hash([]byte("topic-id-12b"))
	sig := []byte("a-signature")
	got := HashChain(prior[:], sig)
	want := Hash(append(append([]byte{}, prior[:]...), sig...))
	if got != want {
		t.Fatalf("HashChain = %x, want %x", got, want)
	}
}

func TestRandomUint32BelowStaysInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v, err := RandomUint32Below(100000)
		if err != nil {
			t.Fatalf("RandomUint32Below: %v", err)
		}
		if v >= 100000 {
			t.Fatalf("value %d out of range", v)
		}
	}
}
