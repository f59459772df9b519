// Package storage implements the content-addressed directory tree
// that durably backs the registry: per-device prekey pools, per-app
// topic-key queues, per-topic hash-chained message segments, opaque
// file blobs, and the registry snapshot.
package storage

import (
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/christophhagen/RendezvousServer/internal/apperr"
	"github.com/christophhagen/RendezvousServer/internal/crypto"
	"github.com/christophhagen/RendezvousServer/internal/wire"
)

// segmentSize is the chain-index span of a topic chain segment file. A
// segment is keyed by the first chain index it can hold: segment 0
// holds chain indices 1..999 (there is no update at index 0), and
// every later segment holds segmentSize indices from its base.
const segmentSize = 1000

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func encodeID(b []byte) string {
	return idEncoding.EncodeToString(b)
}

func encodeAppID(appID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(appID))
}

// Storage is a directory tree rooted at a base path.
type Storage struct {
	base string
}

// Open roots a Storage at dir, creating it if necessary, and self-tests
// a write/read/delete cycle so a misconfigured base path fails fast at
// startup rather than on the first real request.
func Open(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create base directory: %w", err)
	}
	s := &Storage{base: dir}
	if err := s.selfTest(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) selfTest() error {
	probe := filepath.Join(s.base, ".selftest")
	data := []byte("rendezvous-selftest")
	if err := os.WriteFile(probe, data, 0o600); err != nil {
		return fmt.Errorf("storage: self-test write: %w", err)
	}
	got, err := os.ReadFile(probe)
	if err != nil {
		return fmt.Errorf("storage: self-test read: %w", err)
	}
	if string(got) != string(data) {
		return fmt.Errorf("storage: self-test read back mismatched data")
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("storage: self-test delete: %w", err)
	}
	return nil
}

func (s *Storage) path(parts ...string) string {
	return filepath.Join(append([]string{s.base}, parts...)...)
}

// writeFileAtomic writes data to a temp file in the same directory
// then renames it over the destination, so a crash mid-write never
// leaves a half-written blob in place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readFileOrNotFound(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// --- prekeys ---

func (s *Storage) prekeyPath(userKey, deviceKey []byte) string {
	return s.path("users", encodeID(userKey), "prekeys", encodeID(deviceKey))
}

func (s *Storage) loadPreKeyList(userKey, deviceKey []byte) (wire.DevicePreKeyList, error) {
	b, ok, err := readFileOrNotFound(s.prekeyPath(userKey, deviceKey))
	if err != nil {
		return wire.DevicePreKeyList{}, apperr.Internal("read prekey list", err)
	}
	if !ok {
		return wire.DevicePreKeyList{}, nil
	}
	var list wire.DevicePreKeyList
	if err := wire.Unmarshal(b, &list); err != nil {
		return wire.DevicePreKeyList{}, apperr.Internal("decode prekey list", err)
	}
	return list, nil
}

func (s *Storage) savePreKeyList(userKey, deviceKey []byte, list wire.DevicePreKeyList) error {
	path := s.prekeyPath(userKey, deviceKey)
	if len(list.Keys) == 0 {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return apperr.Internal("delete empty prekey list", err)
		}
		return nil
	}
	b, err := wire.Marshal(list)
	if err != nil {
		return apperr.Internal("encode prekey list", err)
	}
	if err := writeFileAtomic(path, b); err != nil {
		return apperr.Internal("write prekey list", err)
	}
	return nil
}

// StorePreKeys appends newKeys to the device's pool and returns the
// new remaining count.
func (s *Storage) StorePreKeys(userKey, deviceKey []byte, newKeys []wire.DevicePrekey) (int, error) {
	list, err := s.loadPreKeyList(userKey, deviceKey)
	if err != nil {
		return 0, err
	}
	list.Keys = append(list.Keys, newKeys...)
	if err := s.savePreKeyList(userKey, deviceKey, list); err != nil {
		return 0, err
	}
	return len(list.Keys), nil
}

// ConsumePreKeys removes up to nPerDevice keys from each listed
// device's pool and returns the bundle, where each device contributes
// min(nPerDevice, its own remaining count).
func (s *Storage) ConsumePreKeys(userKey []byte, deviceKeys [][]byte, nPerDevice int) (wire.DevicePreKeyBundle, error) {
	var bundle wire.DevicePreKeyBundle
	for _, deviceKey := range deviceKeys {
		list, err := s.loadPreKeyList(userKey, deviceKey)
		if err != nil {
			return wire.DevicePreKeyBundle{}, err
		}
		take := nPerDevice
		if take > len(list.Keys) {
			take = len(list.Keys)
		}
		share := wire.DeviceKeyShare{
			DeviceKey: append([]byte(nil), deviceKey...),
			Keys:      append([]wire.DevicePrekey(nil), list.Keys[:take]...),
		}
		list.Keys = list.Keys[take:]
		if err := s.savePreKeyList(userKey, deviceKey, list); err != nil {
			return wire.DevicePreKeyBundle{}, err
		}
		bundle.Devices = append(bundle.Devices, share)
	}
	return bundle, nil
}

// --- topic keys ---

func (s *Storage) topicKeyPath(userKey []byte, appID string) string {
	return s.path("users", encodeID(userKey), "topickeys", encodeAppID(appID))
}

func (s *Storage) loadTopicKeyList(userKey []byte, appID string) (wire.TopicKeyList, error) {
	b, ok, err := readFileOrNotFound(s.topicKeyPath(userKey, appID))
	if err != nil {
		return wire.TopicKeyList{}, apperr.Internal("read topic key list", err)
	}
	if !ok {
		return wire.TopicKeyList{}, nil
	}
	var list wire.TopicKeyList
	if err := wire.Unmarshal(b, &list); err != nil {
		return wire.TopicKeyList{}, apperr.Internal("decode topic key list", err)
	}
	return list, nil
}

func (s *Storage) saveTopicKeyList(userKey []byte, appID string, list wire.TopicKeyList) error {
	path := s.topicKeyPath(userKey, appID)
	if len(list.Keys) == 0 {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return apperr.Internal("delete empty topic key list", err)
		}
		return nil
	}
	b, err := wire.Marshal(list)
	if err != nil {
		return apperr.Internal("encode topic key list", err)
	}
	if err := writeFileAtomic(path, b); err != nil {
		return apperr.Internal("write topic key list", err)
	}
	return nil
}

// StoreTopicKeys appends newKeys to the (user, app) queue, returning
// the new total.
func (s *Storage) StoreTopicKeys(userKey []byte, appID string, newKeys []wire.TopicKey) (int, error) {
	list, err := s.loadTopicKeyList(userKey, appID)
	if err != nil {
		return 0, err
	}
	list.Keys = append(list.Keys, newKeys...)
	if err := s.saveTopicKeyList(userKey, appID, list); err != nil {
		return 0, err
	}
	return len(list.Keys), nil
}

// ConsumeTopicKey removes and returns one key from the tail of the
// (user, app) queue, failing ResourceNotAvailable if it is empty.
func (s *Storage) ConsumeTopicKey(userKey []byte, appID string) (wire.TopicKey, error) {
	list, err := s.loadTopicKeyList(userKey, appID)
	if err != nil {
		return wire.TopicKey{}, err
	}
	if len(list.Keys) == 0 {
		return wire.TopicKey{}, apperr.NotFound("no topic keys remaining")
	}
	key := list.Keys[len(list.Keys)-1]
	list.Keys = list.Keys[:len(list.Keys)-1]
	if err := s.saveTopicKeyList(userKey, appID, list); err != nil {
		return wire.TopicKey{}, err
	}
	return key, nil
}

// --- topic chain segments ---

func (s *Storage) segmentPath(topicID []byte, baseIndex uint32) string {
	return s.path("topics", encodeID(topicID), fmt.Sprintf("%010d", baseIndex))
}

func segmentBase(chainIndex uint32) uint32 {
	return (chainIndex / segmentSize) * segmentSize
}

// TopicExists reports whether topicID already has a chain segment on
// disk, i.e. whether a prior CreateTopic (possibly from a state the
// current in-memory registry no longer remembers) already claimed it.
func (s *Storage) TopicExists(topicID []byte) bool {
	_, err := os.Stat(s.segmentPath(topicID, 0))
	return err == nil
}

func (s *Storage) loadSegment(topicID []byte, baseIndex uint32) (wire.MessageChain, error) {
	b, ok, err := readFileOrNotFound(s.segmentPath(topicID, baseIndex))
	if err != nil {
		return wire.MessageChain{}, apperr.Internal("read chain segment", err)
	}
	if !ok {
		return wire.MessageChain{StartIndex: baseIndex}, nil
	}
	var seg wire.MessageChain
	if err := wire.Unmarshal(b, &seg); err != nil {
		return wire.MessageChain{}, apperr.Internal("decode chain segment", err)
	}
	return seg, nil
}

func (s *Storage) saveSegment(topicID []byte, baseIndex uint32, seg wire.MessageChain) error {
	b, err := wire.Marshal(seg)
	if err != nil {
		return apperr.Internal("encode chain segment", err)
	}
	if err := writeFileAtomic(s.segmentPath(topicID, baseIndex), b); err != nil {
		return apperr.Internal("write chain segment", err)
	}
	return nil
}

// AppendUpdate loads the segment that newChainIndex belongs to
// (creating it if newChainIndex starts a new segment), appends update,
// and returns SHA256(priorOutput || update.Signature). priorOutput is
// the raw topic ID when newChainIndex is 1 and a prior chain digest
// otherwise.
func (s *Storage) AppendUpdate(topicID []byte, update wire.TopicUpdate, newChainIndex uint32, priorOutput []byte) ([32]byte, error) {
	base := segmentBase(newChainIndex)
	seg, err := s.loadSegment(topicID, base)
	if err != nil {
		return [32]byte{}, err
	}
	seg.StartIndex = base
	seg.Updates = append(seg.Updates, update)
	if err := s.saveSegment(topicID, base, seg); err != nil {
		return [32]byte{}, err
	}
	return crypto.HashChain(priorOutput, update.Signature), nil
}

// ReadUpdates returns the contiguous slice of updates [start, start+count)
// for topicID, spanning segments as needed. Positions are 0-based:
// position p is the update committed with chain index p+1.
func (s *Storage) ReadUpdates(topicID []byte, start, count uint32) ([]wire.TopicUpdate, error) {
	if count == 0 {
		return nil, nil
	}
	updates := make([]wire.TopicUpdate, 0, count)
	index := start
	end := start + count
	for index < end {
		chainIndex := index + 1
		base := segmentBase(chainIndex)
		seg, err := s.loadSegment(topicID, base)
		if err != nil {
			return nil, err
		}
		offset := chainIndex - base
		if base == 0 {
			offset--
		}
		if int(offset) >= len(seg.Updates) {
			break
		}
		for int(offset) < len(seg.Updates) && index < end {
			updates = append(updates, seg.Updates[offset])
			offset++
			index++
		}
	}
	return updates, nil
}

// --- files ---

func (s *Storage) filePath(topicID, messageID []byte) string {
	return s.path("files", encodeID(topicID), encodeID(messageID))
}

// StoreFile persists an opaque file blob, failing if one already
// exists at this (topicID, messageID) address.
func (s *Storage) StoreFile(topicID, messageID, data []byte) error {
	path := s.filePath(topicID, messageID)
	if _, err := os.Stat(path); err == nil {
		return apperr.AlreadyExists("file already uploaded")
	}
	if err := writeFileAtomic(path, data); err != nil {
		return apperr.Internal("write file", err)
	}
	return nil
}

// FileExists reports whether a file blob is already stored at
// (topicID, messageID).
func (s *Storage) FileExists(topicID, messageID []byte) bool {
	_, err := os.Stat(s.filePath(topicID, messageID))
	return err == nil
}

// GetFile returns a previously stored file's bytes.
func (s *Storage) GetFile(topicID, messageID []byte) ([]byte, error) {
	b, ok, err := readFileOrNotFound(s.filePath(topicID, messageID))
	if err != nil {
		return nil, apperr.Internal("read file", err)
	}
	if !ok {
		return nil, apperr.NotFound("file not found")
	}
	return b, nil
}

// --- topic/user tree deletion ---

// DeleteUserTree removes every on-disk blob owned by userKey.
func (s *Storage) DeleteUserTree(userKey []byte) error {
	err := os.RemoveAll(s.path("users", encodeID(userKey)))
	if err != nil {
		return apperr.Internal("delete user tree", err)
	}
	return nil
}

// DeleteTopicTree removes a topic's chain segments and file blobs.
func (s *Storage) DeleteTopicTree(topicID []byte) error {
	if err := os.RemoveAll(s.path("topics", encodeID(topicID))); err != nil {
		return apperr.Internal("delete topic chain", err)
	}
	if err := os.RemoveAll(s.path("files", encodeID(topicID))); err != nil {
		return apperr.Internal("delete topic files", err)
	}
	return nil
}

// --- snapshot ---

func (s *Storage) snapshotPath() string {
	return s.path("server")
}

// WriteSnapshot persists the registry snapshot bytes.
func (s *Storage) WriteSnapshot(data []byte) error {
	if err := writeFileAtomic(s.snapshotPath(), data); err != nil {
		return apperr.Internal("write snapshot", err)
	}
	return nil
}

// ReadSnapshot returns the persisted snapshot bytes, or ok=false if
// none has ever been written.
func (s *Storage) ReadSnapshot() (data []byte, ok bool, err error) {
	data, ok, err = readFileOrNotFound(s.snapshotPath())
	if err != nil {
		return nil, false, apperr.Internal("read snapshot", err)
	}
	return data, ok, nil
}

// DeleteAll removes every blob under the base directory, including
// the snapshot, re-initializing to an empty tree. Used by the
// development-only admin reset operation.
func (s *Storage) DeleteAll() error {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return apperr.Internal("list base directory", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.base, e.Name())); err != nil {
			return apperr.Internal("delete base directory entry", err)
		}
	}
	return nil
}
