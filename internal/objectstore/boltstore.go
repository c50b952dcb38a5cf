package objectstore

import (
	"context"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/peerlog/peerlog/internal/canon"
)

var bucketObjects = []byte("objects")

// BoltStore is a durable, content-addressed object store backed by a
// single bbolt database file. Objects are content-addressed so the bucket
// is effectively a write-once map; there is no update path.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt-backed store rooted at
// dataDir/objects.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "objects.db"), 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "objectstore: open bolt db")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketObjects)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "objectstore: create bucket")
	}

	return &BoltStore{db: db}, nil
}

// Put derives b's CID, persists it if not already present, and returns the
// CID. bbolt's own write-ahead log gives us crash safety for free.
func (s *BoltStore) Put(b []byte) (cid.Cid, error) {
	c, err := canon.Sum(b)
	if err != nil {
		return cid.Cid{}, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketObjects)
		key := []byte(c.KeyString())
		if bucket.Get(key) != nil {
			return nil // already stored, content-addressed so no-op
		}
		return bucket.Put(key, b)
	})
	if err != nil {
		return cid.Cid{}, errors.Wrap(err, "objectstore: put")
	}
	return c, nil
}

// Get fetches the bytes for c, or ErrNotFound.
func (s *BoltStore) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketObjects).Get([]byte(c.KeyString()))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Pin only checks that c is stored, returning ErrNotFound otherwise: every
// put object lives until the database file is removed, so there is nothing
// further to mark. The method exists so BoltStore satisfies Store without
// implying a GC policy this module doesn't own.
func (s *BoltStore) Pin(c cid.Cid) error {
	_, err := s.Get(context.Background(), c)
	return err
}

// Close releases the underlying bbolt handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
