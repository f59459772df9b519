package httpapi

import (
	"bytes"
	"encoding/base64"
	"log"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/push"
	"github.com/christophhagen/RendezvousServer/internal/registry"
	"github.com/christophhagen/RendezvousServer/internal/storage"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	logger := log.New(testWriter{t}, "", 0)
	reg, err := registry.New(store, push.Noop{}, logger)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	s := New(reg, logger, true)
	return s, reg
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

func TestPing(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/ping", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHappyPathRegistrationOverHTTP(t *testing.T) {
	s, reg := newTestServer(t)

	adminToken := reg.AdminToken()

	allowReq := httptest.NewRequest("POST", "/admin/allow", nil)
	allowReq.Header.Set(HeaderAuth, base64.StdEncoding.EncodeToString(adminToken))
	allowReq.Header.Set(HeaderUsername, "alice")
	allowRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(allowRec, allowReq)
	if allowRec.Code != 200 {
		t.Fatalf("admin/allow status = %d, body %s", allowRec.Code, allowRec.Body.String())
	}
	var allowed wire.AllowedUser
	if err := wire.Unmarshal(allowRec.Body.Bytes(), &allowed); err != nil {
		t.Fatalf("decode AllowedUser: %v", err)
	}

	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	devicePub, devicePriv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey device: %v", err)
	}
	device := wire.Device{DeviceKey: devicePub, IsActive: true, Application: "chat"}
	user := wire.InternalUser{
		IdentityKey: pub,
		Name:        "alice",
		Devices:     []wire.Device{device},
		Timestamp:   time.Now().Unix(),
	}
	signedBytes, err := user.SignedBytes()
	if err != nil {
		t.Fatalf("SignedBytes: %v", err)
	}
	sig, err := crypto.Sign(priv, signedBytes)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	user.Signature = sig

	preKeys := []wire.DevicePrekey{{PreKey: []byte("k1")}, {PreKey: []byte("k2")}}
	for i := range preKeys {
		pb, err := preKeys[i].SignedBytes()
		if err != nil {
			t.Fatalf("prekey SignedBytes: %v", err)
		}
		if preKeys[i].Signature, err = crypto.Sign(devicePriv, pb); err != nil {
			t.Fatalf("Sign prekey: %v", err)
		}
	}
	bundle := wire.RegistrationBundle{
		Info:    user,
		PreKeys: preKeys,
	}
	body, err := wire.Marshal(bundle)
	if err != nil {
		t.Fatalf("Marshal bundle: %v", err)
	}
	regReq := httptest.NewRequest("POST", "/user/register", bytes.NewReader(body))
	regReq.Header.Set("X-Pin", strconv.FormatUint(uint64(allowed.Pin), 10))
	regRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(regRec, regReq)
	if regRec.Code != 200 {
		t.Fatalf("user/register status = %d, body %s", regRec.Code, regRec.Body.String())
	}
	token := regRec.Body.Bytes()
	if len(token) != 16 {
		t.Fatalf("device token length = %d, want 16", len(token))
	}

	infoReq := httptest.NewRequest("GET", "/user/info", nil)
	infoReq.Header.Set(HeaderUser, base64.StdEncoding.EncodeToString(pub))
	infoReq.Header.Set(HeaderDevice, base64.StdEncoding.EncodeToString(device.DeviceKey))
	infoReq.Header.Set(HeaderAuth, base64.StdEncoding.EncodeToString(token))
	infoRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(infoRec, infoReq)
	if infoRec.Code != 200 {
		t.Fatalf("user/info status = %d, body %s", infoRec.Code, infoRec.Body.String())
	}
	var got wire.InternalUser
	if err := wire.Unmarshal(infoRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode InternalUser: %v", err)
	}
	if got.Name != "alice" {
		t.Fatalf("Name = %q, want alice", got.Name)
	}
}
