// Package keystore implements the long-lived signing identity collaborator
// (spec §6): getKey/createKey, and keys that can sign bytes and report
// their own public key. Ed25519 is used directly from the standard library
// — no example repo in this lineage wires a dedicated signing library for
// this narrow a primitive, so stdlib is the correct, unembellished choice
// here (see DESIGN.md).
package keystore

import (
	"crypto/ed25519"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"
)

// Key is a single signing identity.
type Key struct {
	id      string
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
}

// PublicKey returns the key's public identity, hex-encoded as required by
// the access-controller and entry canonical forms (spec §6).
func (k *Key) PublicKey() string {
	return hex.EncodeToString(k.pub)
}

// Sign signs b with the key's private material.
func (k *Key) Sign(b []byte) ([]byte, error) {
	if k.priv == nil {
		return nil, errors.New("keystore: key has no private material")
	}
	return ed25519.Sign(k.priv, b), nil
}

// Verify checks sig over msg against pubKeyHex, independent of any
// in-memory Key — this is the VerifyFunc the coordinator hands to the
// oplog and the replicator to authenticate remote entries whose signer it
// has never held a Key for.
func Verify(pubKeyHex string, msg, sig []byte) bool {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// Store holds keys for one or more identities, keyed by an arbitrary local
// id (the coordinator uses its node id, or "default" when it has none).
type Store struct {
	mu   sync.RWMutex
	keys map[string]*Key
}

// NewStore returns an empty in-memory key store.
func NewStore() *Store {
	return &Store{keys: make(map[string]*Key)}
}

// GetKey returns the key for id, or nil if none has been created yet.
func (s *Store) GetKey(id string) *Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[id]
}

// CreateKey generates a fresh Ed25519 key pair for id, replacing any
// existing key under that id.
func (s *Store) CreateKey(id string) (*Key, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: generate key")
	}
	k := &Key{id: id, pub: pub, priv: priv}
	s.mu.Lock()
	s.keys[id] = k
	s.mu.Unlock()
	return k, nil
}

// GetOrCreate returns the key for id, creating one if it doesn't exist.
func (s *Store) GetOrCreate(id string) (*Key, error) {
	if k := s.GetKey(id); k != nil {
		return k, nil
	}
	return s.CreateKey(id)
}
