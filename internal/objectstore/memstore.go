package objectstore

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/peerlog/peerlog/internal/canon"
)

// MemStore is an in-memory, content-addressed object store. It is safe for
// concurrent use: many readers, one writer at a time per key, matching the
// RWMutex-guarded map pattern this lineage uses for its storage engine.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	pinned  map[string]bool
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
		pinned:  make(map[string]bool),
	}
}

// Put derives b's CID and stores it. Puts are deterministic and idempotent:
// storing equal bytes twice yields the same CID and leaves the store
// unchanged the second time.
func (m *MemStore) Put(b []byte) (cid.Cid, error) {
	c, err := canon.Sum(b)
	if err != nil {
		return cid.Cid{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[c.KeyString()] = append([]byte(nil), b...)
	return c, nil
}

// Get returns the bytes for c, or ErrNotFound.
func (m *MemStore) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[c.KeyString()]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Pin marks c as pinned; MemStore never garbage collects, so this only
// records intent for callers that inspect it.
func (m *MemStore) Pin(c cid.Cid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[c.KeyString()]; !ok {
		return ErrNotFound
	}
	m.pinned[c.KeyString()] = true
	return nil
}

// Has reports whether c is present, without the overhead of a full Get.
func (m *MemStore) Has(c cid.Cid) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[c.KeyString()]
	return ok
}
