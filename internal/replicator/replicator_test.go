package replicator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/peerlog/peerlog/internal/accesscontroller"
	"github.com/peerlog/peerlog/internal/entry"
	"github.com/peerlog/peerlog/internal/keystore"
	"github.com/peerlog/peerlog/internal/objectstore"
	"github.com/peerlog/peerlog/internal/oplog"
	"github.com/peerlog/peerlog/internal/replicationinfo"
)

// eventRecorder collects emitted events in arrival order, safe for
// concurrent emit calls from the replicator's worker goroutines.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) progressEvents() []EventReplicateProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventReplicateProgress
	for _, e := range r.events {
		if p, ok := e.(EventReplicateProgress); ok {
			out = append(out, p)
		}
	}
	return out
}

// buildChain creates n entries signed by writer, appended to store, each
// one's parent being the previous; returns them oldest-first.
func buildChain(t *testing.T, store objectstore.Store, writer *keystore.Key, n int) []*entry.Entry {
	t.Helper()
	var chain []*entry.Entry
	var parents []entry.Parent
	for i := 0; i < n; i++ {
		e, err := entry.Create("log1", writer, []byte{byte(i)}, parents)
		require.NoError(t, err)
		require.NoError(t, entry.Put(context.Background(), store, e))
		chain = append(chain, e)
		parents = []entry.Parent{e}
	}
	return chain
}

func newHarness(t *testing.T, store objectstore.Store, writer *keystore.Key) (*oplog.Oplog, *Replicator, *eventRecorder) {
	t.Helper()
	ac := accesscontroller.New()
	ac.Add("write", writer.PublicKey())
	log := oplog.New("log1", writer, keystore.Verify, ac)
	rec := &eventRecorder{}
	rep := New("log1", log, store, keystore.Verify, ac, replicationinfo.New(), 4, rec.emit)
	t.Cleanup(rep.Close)
	return log, rep, rec
}

func TestReplicatorSingleEntry(t *testing.T) {
	writer, err := keystore.NewStore().GetOrCreate("writer")
	require.NoError(t, err)
	store := objectstore.NewMemStore()
	chain := buildChain(t, store, writer, 1)

	log, rep, _ := newHarness(t, store, writer)
	rep.Enqueue(context.Background(), []cid.Cid{chain[0].Hash})
	rep.Wait()
	waitUntil(t, func() bool { return log.Has(chain[0].Hash) })

	require.Equal(t, 1, log.Length())
}

func TestReplicatorHundredEntryChain(t *testing.T) {
	writer, err := keystore.NewStore().GetOrCreate("writer")
	require.NoError(t, err)
	store := objectstore.NewMemStore()
	chain := buildChain(t, store, writer, 100)

	log, rep, rec := newHarness(t, store, writer)
	rep.Enqueue(context.Background(), []cid.Cid{chain[len(chain)-1].Hash})
	rep.Wait()
	waitUntil(t, func() bool { return log.Length() == 100 })

	require.Equal(t, 100, log.Length())

	progress := rec.progressEvents()
	require.Len(t, progress, 100)
	for i := 1; i < len(progress); i++ {
		require.LessOrEqual(t, progress[i-1].Entry.Clock.Time, progress[i].Entry.Clock.Time)
	}
}

func TestReplicatorProgressEventsForNinetyNineNewEntries(t *testing.T) {
	writer, err := keystore.NewStore().GetOrCreate("writer")
	require.NoError(t, err)
	store := objectstore.NewMemStore()
	chain := buildChain(t, store, writer, 100)

	ac := accesscontroller.New()
	ac.Add("write", writer.PublicKey())
	log := oplog.New("log1", writer, keystore.Verify, ac)
	_, err = log.Merge([]*entry.Entry{chain[0]})
	require.NoError(t, err)

	rec := &eventRecorder{}
	rep := New("log1", log, store, keystore.Verify, ac, replicationinfo.New(), 4, rec.emit)
	t.Cleanup(rep.Close)

	rep.Enqueue(context.Background(), []cid.Cid{chain[len(chain)-1].Hash})
	rep.Wait()
	waitUntil(t, func() bool { return log.Length() == 100 })

	require.Len(t, rec.progressEvents(), 99)
}

func TestReplicatorIdempotentDoubleEnqueue(t *testing.T) {
	writer, err := keystore.NewStore().GetOrCreate("writer")
	require.NoError(t, err)
	store := objectstore.NewMemStore()
	chain := buildChain(t, store, writer, 5)

	log, rep, rec := newHarness(t, store, writer)
	head := chain[len(chain)-1].Hash
	rep.Enqueue(context.Background(), []cid.Cid{head})
	rep.Enqueue(context.Background(), []cid.Cid{head})
	rep.Wait()
	waitUntil(t, func() bool { return log.Length() == 5 })

	require.Equal(t, 5, log.Length())
	require.Len(t, rec.progressEvents(), 5)
}

func TestReplicatorDropsUnauthorizedEntry(t *testing.T) {
	writer, err := keystore.NewStore().GetOrCreate("writer")
	require.NoError(t, err)
	store := objectstore.NewMemStore()
	chain := buildChain(t, store, writer, 1)

	ac := accesscontroller.New() // writer not authorized
	log := oplog.New("log1", writer, keystore.Verify, ac)
	rec := &eventRecorder{}
	rep := New("log1", log, store, keystore.Verify, ac, replicationinfo.New(), 4, rec.emit)
	t.Cleanup(rep.Close)

	rep.Enqueue(context.Background(), []cid.Cid{chain[0].Hash})
	rep.Wait()
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, 0, log.Length())
	require.Empty(t, rec.progressEvents())
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}
