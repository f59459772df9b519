// Package registry holds the server's authoritative in-memory state
// and the storage handle it exclusively owns. A single RWMutex guards
// both: mutations touch memory and disk together and are released
// before any push-notification call, per the server's concurrency
// model.
package registry

import (
	"log"
	"sync"
	"time"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/push"
	"github.com/christophhagen/RendezvousServer/internal/storage"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// pinExpiryInterval is how long an admin-issued pin remains valid:
// 60 * 60 * 32 * 7 seconds, roughly 9.3 days (the odd multiplier
// makes this longer than a clean week).
const pinExpiryInterval = 60 * 60 * 32 * 7

// Registry is the server's single authoritative in-memory state.
type Registry struct {
	mu sync.RWMutex

	allowedUsers       map[string]wire.AllowedUser // key: name
	users              map[string]wire.InternalUser // key: string(identityKey)
	deviceOwner        map[string]string            // key: string(deviceKey) -> string(identityKey)
	authTokens         map[string][]byte            // key: string(deviceKey)
	notificationTokens map[string][]byte            // key: string(deviceKey)
	mailbox            map[string]wire.Mailbox       // key: string(deviceKey)
	oldMailbox         map[string]wire.Mailbox       // key: string(deviceKey)
	topics             map[string]wire.TopicState    // key: string(topicID)
	adminToken         []byte

	store    *storage.Storage
	notifier push.Notifier
	logger   *log.Logger
}

// New constructs a Registry over store, loading any prior snapshot.
// If no snapshot exists, a fresh admin token is minted. A nil logger
// falls back to log.Default().
func New(store *storage.Storage, notifier push.Notifier, logger *log.Logger) (*Registry, error) {
	if notifier == nil {
		notifier = push.Noop{}
	}
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{
		allowedUsers:       map[string]wire.AllowedUser{},
		users:              map[string]wire.InternalUser{},
		deviceOwner:        map[string]string{},
		authTokens:         map[string][]byte{},
		notificationTokens: map[string][]byte{},
		mailbox:            map[string]wire.Mailbox{},
		oldMailbox:         map[string]wire.Mailbox{},
		topics:             map[string]wire.TopicState{},
		store:              store,
		notifier:           notifier,
		logger:             logger,
	}
	data, ok, err := store.ReadSnapshot()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := r.loadSnapshot(data); err != nil {
			return nil, err
		}
		return r, nil
	}
	token, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, apperr.Internal("generate admin token", err)
	}
	r.adminToken = token
	r.snapshotLocked()
	return r, nil
}

// AdminToken returns a copy of the current admin token.
func (r *Registry) AdminToken() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.adminToken...)
}

// VerifyAdminToken reports whether token matches the current admin token.
func (r *Registry) VerifyAdminToken(token []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return crypto.ConstantTimeEqual(r.adminToken, token)
}

// RenewAdminToken replaces the admin token with a new random one.
func (r *Registry) RenewAdminToken() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, apperr.Internal("generate admin token", err)
	}
	old := r.adminToken
	r.adminToken = token
	crypto.Zero(old)
	r.snapshotLocked()
	return append([]byte(nil), token...), nil
}

// ResetAll wipes all in-memory state and all storage. Callers must
// gate this on development mode; the registry itself does not know
// about configuration.
func (r *Registry) ResetAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.DeleteAll(); err != nil {
		return err
	}
	r.allowedUsers = map[string]wire.AllowedUser{}
	r.users = map[string]wire.InternalUser{}
	r.deviceOwner = map[string]string{}
	r.authTokens = map[string][]byte{}
	r.notificationTokens = map[string][]byte{}
	r.mailbox = map[string]wire.Mailbox{}
	r.oldMailbox = map[string]wire.Mailbox{}
	r.topics = map[string]wire.TopicState{}
	token, err := crypto.RandomBytes(16)
	if err != nil {
		return apperr.Internal("generate admin token", err)
	}
	r.adminToken = token
	r.snapshotLocked()
	return nil
}

// AllowUser admits a new pending registration under name.
func (r *Registry) AllowUser(name string) (wire.AllowedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.userByName(name); exists {
		return wire.AllowedUser{}, apperr.AlreadyExists("user already registered")
	}
	if _, exists := r.allowedUsers[name]; exists {
		return wire.AllowedUser{}, apperr.AlreadyExists("user already allowed")
	}
	pin, err := crypto.RandomUint32Below(100000)
	if err != nil {
		return wire.AllowedUser{}, apperr.Internal("generate pin", err)
	}
	entry := wire.AllowedUser{
		Name:           name,
		Pin:            pin,
		Expiry:         time.Now().Unix() + pinExpiryInterval,
		TriesRemaining: 3,
	}
	r.allowedUsers[name] = entry
	r.snapshotLocked()
	return entry, nil
}

func (r *Registry) userByName(name string) (wire.InternalUser, bool) {
	for _, u := range r.users {
		if u.Name == name {
			return u, true
		}
	}
	return wire.InternalUser{}, false
}

// CanRegister implements the pin-lockout gate: absent or expired
// entries fail outright; a wrong pin consumes one of three tries
// before the name is evicted.
func (r *Registry) CanRegister(name string, pin uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canRegisterLocked(name, pin)
}

func (r *Registry) canRegisterLocked(name string, pin uint32) bool {
	entry, ok := r.allowedUsers[name]
	if !ok {
		return false
	}
	if entry.Expiry < time.Now().Unix() {
		delete(r.allowedUsers, name)
		return false
	}
	if entry.Pin == pin {
		return true
	}
	entry.TriesRemaining--
	if entry.TriesRemaining == 0 {
		delete(r.allowedUsers, name)
	} else {
		r.allowedUsers[name] = entry
	}
	return false
}

// AuthenticateUser requires userKey to exist, deviceKey to belong to
// it, and token to match in constant time.
func (r *Registry) AuthenticateUser(userKey, deviceKey, token []byte) (wire.InternalUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[string(userKey)]
	if !ok {
		return wire.InternalUser{}, apperr.Unauthorized("unknown user")
	}
	owner, ok := r.deviceOwner[string(deviceKey)]
	if !ok || owner != string(userKey) {
		return wire.InternalUser{}, apperr.Unauthorized("device does not belong to user")
	}
	stored, ok := r.authTokens[string(deviceKey)]
	if !ok || !crypto.ConstantTimeEqual(stored, token) {
		return wire.InternalUser{}, apperr.Unauthorized("invalid auth token")
	}
	return user.Clone(), nil
}

// AuthenticateDevice authenticates deviceKey/token without requiring
// a caller-supplied user binding, returning the owning user's key and
// record.
func (r *Registry) AuthenticateDevice(deviceKey, token []byte) ([]byte, wire.InternalUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.deviceOwner[string(deviceKey)]
	if !ok {
		return nil, wire.InternalUser{}, apperr.Unauthorized("unknown device")
	}
	stored, ok := r.authTokens[string(deviceKey)]
	if !ok || !crypto.ConstantTimeEqual(stored, token) {
		return nil, wire.InternalUser{}, apperr.Unauthorized("invalid auth token")
	}
	user := r.users[owner]
	return []byte(owner), user.Clone(), nil
}

// GetUser returns a copy of the user record for userKey.
func (r *Registry) GetUser(userKey []byte) (wire.InternalUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[string(userKey)]
	if !ok {
		return wire.InternalUser{}, false
	}
	return u.Clone(), true
}

// DeviceExists reports whether deviceKey is already registered to
// any user, the global-uniqueness check spec.md requires on device add.
func (r *Registry) DeviceExists(deviceKey []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.deviceOwner[string(deviceKey)]
	return ok
}

// AccountSummary is the admin listing's per-user row.
type AccountSummary struct {
	UserKey     []byte
	Name        string
	DeviceCount int
}

// ListAccounts returns a summary row per registered user, for the
// admin accounts endpoint.
func (r *Registry) ListAccounts() []AccountSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AccountSummary, 0, len(r.users))
	for key, u := range r.users {
		out = append(out, AccountSummary{
			UserKey:     []byte(key),
			Name:        u.Name,
			DeviceCount: len(u.Devices),
		})
	}
	return out
}

// snapshotLocked persists the current state to the management
// snapshot file. A failure here is logged and never fails the
// governing mutation: durable per-entity blobs (users, keys, chain
// segments) are already committed by the time this runs, and only the
// admin token and allowed-user table would be stale on a crash before
// the next successful snapshot.
func (r *Registry) snapshotLocked() {
	data, err := wire.Marshal(r.toManagementData())
	if err != nil {
		r.logger.Printf("registry: encode snapshot: %v", err)
		return
	}
	if err := r.store.WriteSnapshot(data); err != nil {
		r.logger.Printf("registry: write snapshot: %v", err)
	}
}

// Snapshot forces a snapshot write, exposed for handlers that commit
// outside of this package's own mutators (none currently do, but
// kept narrow and explicit rather than exporting the lock).
func (r *Registry) Snapshot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshotLocked()
}
