package cache

import (
	"context"

	ds "github.com/ipfs/go-datastore"
	leveldb "github.com/ipfs/go-ds-leveldb"
	"github.com/pkg/errors"
)

// LevelCache is a LevelDB-backed Cache for one local directory, used by
// production coordinators that need their heads/manifest pointers to
// survive a restart.
type LevelCache struct {
	store *leveldb.Datastore
}

// Load opens (creating if absent) the LevelDB cache rooted at directory.
// Matches spec §6's `load(directory, address) → cache`; address itself is
// folded into cache keys by callers via ManifestKey/HeadsKey rather than
// into the path, so one LevelCache instance can serve every database under
// a directory.
func Load(directory string) (*LevelCache, error) {
	store, err := leveldb.NewDatastore(directory, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "cache: open %s", directory)
	}
	return &LevelCache{store: store}, nil
}

func (c *LevelCache) Get(key string) ([]byte, bool) {
	v, err := c.store.Get(context.Background(), ds.NewKey(key))
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *LevelCache) Set(key string, value []byte) error {
	return c.store.Put(context.Background(), ds.NewKey(key), value)
}

func (c *LevelCache) Delete(key string) error {
	return c.store.Delete(context.Background(), ds.NewKey(key))
}

func (c *LevelCache) Close() error {
	return c.store.Close()
}
