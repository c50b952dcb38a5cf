package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/peerlog/peerlog/internal/address"
	"github.com/peerlog/peerlog/internal/cache"
	"github.com/peerlog/peerlog/internal/canon"
	"github.com/peerlog/peerlog/internal/gossip"
	"github.com/peerlog/peerlog/internal/keystore"
	"github.com/peerlog/peerlog/internal/objectstore"
)

func newDeps(bus gossip.Bus, selfID string) Deps {
	return Deps{
		Store:  objectstore.NewMemStore(),
		Bus:    bus,
		Keys:   keystore.NewStore(),
		Cache:  cache.NewMapCache(),
		SelfID: selfID,
	}
}

func drainEvents(t *testing.T, c *Coordinator, n int) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case e := <-c.Events():
			got = append(got, e)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d: %#v", n, len(got), got)
		}
	}
	return got
}

func TestOpenCreatesNewDatabase(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, address.EventLog, c.Manifest().Type)
	require.Equal(t, "mylog", c.Manifest().Name)

	evs := drainEvents(t, c, 1)
	_, ok := evs[0].(Ready)
	require.True(t, ok)
}

func TestOpenWithoutCreateFailsWhenUnknown(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	_, err := Open(context.Background(), "nope", Options{}, deps)
	require.ErrorIs(t, err, ErrUnknownDatabase)
}

func TestOpenCreateTwiceWithoutOverwriteFails(t *testing.T) {
	bus := gossip.NewLocalBus()
	deps := newDeps(bus, "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	defer c.Close()

	_, err = Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOpenRejectsInvalidType(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	_, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.Type("bogus")}, deps)
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestOpenByAddressEnforcesTypeMismatch(t *testing.T) {
	bus := gossip.NewLocalBus()
	deps := newDeps(bus, "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	addr := c.Address().String()
	c.Close()

	_, err = Open(context.Background(), addr, Options{Type: address.Feed}, deps)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestAddAppendsAndEmitsWrite(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	defer c.Close()
	drainEvents(t, c, 1) // Ready

	e, err := c.Add(context.Background(), []byte("hello"))
	require.NoError(t, err)
	require.NotNil(t, e)

	evs := drainEvents(t, c, 1)
	w, ok := evs[0].(Write)
	require.True(t, ok)
	require.Equal(t, c.Address().String(), w.Address)
	require.True(t, e.Hash.Equals(w.Entry.Hash))
}

func TestIteratorReturnsAppendedEntries(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	defer c.Close()
	drainEvents(t, c, 1)

	for i := 0; i < 3; i++ {
		_, err := c.Add(context.Background(), []byte{byte(i)})
		require.NoError(t, err)
		drainEvents(t, c, 1)
	}

	all := c.Iterator(IteratorOptions{Limit: -1})
	require.Len(t, all, 3)
}

func TestIteratorDefaultLimitIsOne(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	defer c.Close()
	drainEvents(t, c, 1)

	for i := 0; i < 3; i++ {
		_, err := c.Add(context.Background(), []byte{byte(i)})
		require.NoError(t, err)
		drainEvents(t, c, 1)
	}

	got := c.Iterator(IteratorOptions{})
	require.Len(t, got, 1)
}

func TestCloseIsIdempotentAndClosesEventsChannel(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	drainEvents(t, c, 1)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	evs := drainEvents(t, c, 1)
	_, ok := evs[0].(Closed)
	require.True(t, ok)

	_, open := <-c.Events()
	require.False(t, open)
}

func TestDropDeletesCacheEntries(t *testing.T) {
	cacheImpl := cache.NewMapCache()
	deps := Deps{
		Store:  objectstore.NewMemStore(),
		Bus:    gossip.NewLocalBus(),
		Keys:   keystore.NewStore(),
		Cache:  cacheImpl,
		SelfID: "node1",
	}
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	drainEvents(t, c, 1)

	_, ok := cacheImpl.Get(cache.ManifestKey("mylog"))
	require.True(t, ok)

	require.NoError(t, c.Drop())

	_, ok = cacheImpl.Get(cache.ManifestKey("mylog"))
	require.False(t, ok)
}

// TestTwoCoordinatorsReplicateOverSharedBus exercises the full
// open/add/gossip-peer-join/replicate path end to end: two coordinators on
// the same LocalBus and a shared object store, one writes, the other
// observes the new heads via its peer-joined callback and replicates.
func TestTwoCoordinatorsReplicateOverSharedBus(t *testing.T) {
	bus := gossip.NewLocalBus()
	store := objectstore.NewMemStore()

	depsA := Deps{Store: store, Bus: bus, Keys: keystore.NewStore(), Cache: cache.NewMapCache(), SelfID: "nodeA"}
	a, err := Open(context.Background(), "shared", Options{Create: true, Type: address.EventLog, Write: []string{"*"}}, depsA)
	require.NoError(t, err)
	defer a.Close()
	drainEvents(t, a, 1)

	_, err = a.Add(context.Background(), []byte("first"))
	require.NoError(t, err)
	drainEvents(t, a, 1)

	depsB := Deps{Store: store, Bus: bus, Keys: keystore.NewStore(), Cache: cache.NewMapCache(), SelfID: "nodeB"}
	b, err := Open(context.Background(), a.Address().String(), Options{}, depsB)
	require.NoError(t, err)
	defer b.Close()

	// B's subscription makes A see B join, so A sends B its heads via
	// onGossipPeerJoined while B is still opening; B's Ready fires, and B
	// then replicates A's entry.
	var sawReplicated bool
	deadline := time.After(2 * time.Second)
	for !sawReplicated {
		select {
		case e := <-b.Events():
			if _, ok := e.(Replicated); ok {
				sawReplicated = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for replication on B")
		}
	}

	got := b.Iterator(IteratorOptions{Limit: -1})
	require.Len(t, got, 1)
	require.Equal(t, []byte("first"), got[0].Payload)
}

func TestIteratorGtGteLtLteWindowByTotalOrderPosition(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	defer c.Close()
	drainEvents(t, c, 1)

	var entries []*entryResult
	for i := 0; i < 5; i++ {
		e, err := c.Add(context.Background(), []byte{byte(i)})
		require.NoError(t, err)
		drainEvents(t, c, 1)
		entries = append(entries, &entryResult{hash: e.Hash})
	}

	all := c.Iterator(IteratorOptions{Limit: -1})
	require.Len(t, all, 5)
	// All() orders by (clock.time, clock.id, cid), not by CID string, so
	// confirm the fixture's append order actually matches total order
	// before relying on it below (single writer ⇒ strictly increasing
	// clock time per append).
	for i, e := range all {
		require.True(t, e.Hash.Equals(entries[i].hash), "entry %d out of expected total order", i)
	}

	gt := c.Iterator(IteratorOptions{Limit: -1, Gt: &entries[1].hash})
	require.Len(t, gt, 3)
	require.True(t, gt[0].Hash.Equals(entries[2].hash))

	gte := c.Iterator(IteratorOptions{Limit: -1, Gte: &entries[1].hash})
	require.Len(t, gte, 4)
	require.True(t, gte[0].Hash.Equals(entries[1].hash))

	lt := c.Iterator(IteratorOptions{Limit: -1, Lt: &entries[3].hash})
	require.Len(t, lt, 3)
	require.True(t, lt[len(lt)-1].Hash.Equals(entries[2].hash))

	lte := c.Iterator(IteratorOptions{Limit: -1, Lte: &entries[3].hash})
	require.Len(t, lte, 4)
	require.True(t, lte[len(lte)-1].Hash.Equals(entries[3].hash))

	gtLt := c.Iterator(IteratorOptions{Limit: -1, Gt: &entries[0].hash, Lt: &entries[4].hash})
	require.Len(t, gtLt, 3)
}

func TestIteratorGtWithUnknownCidReturnsEmpty(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	defer c.Close()
	drainEvents(t, c, 1)

	_, err = c.Add(context.Background(), []byte("x"))
	require.NoError(t, err)
	drainEvents(t, c, 1)

	unknown := canonMustSum(t, "never appended")
	got := c.Iterator(IteratorOptions{Limit: -1, Gt: &unknown})
	require.Empty(t, got)
}

type entryResult struct {
	hash cid.Cid
}

func canonMustSum(t *testing.T, s string) cid.Cid {
	t.Helper()
	c, err := canon.Sum([]byte(s))
	require.NoError(t, err)
	return c
}

func TestSyncIsIdempotentForAlreadyKnownHeads(t *testing.T) {
	deps := newDeps(gossip.NewLocalBus(), "node1")
	c, err := Open(context.Background(), "mylog", Options{Create: true, Type: address.EventLog}, deps)
	require.NoError(t, err)
	defer c.Close()
	drainEvents(t, c, 1)

	_, err = c.Add(context.Background(), []byte("x"))
	require.NoError(t, err)
	drainEvents(t, c, 1)

	heads := c.Iterator(IteratorOptions{Limit: -1})[0].Hash
	c.Sync(context.Background(), []cid.Cid{heads})

	select {
	case e := <-c.Events():
		t.Fatalf("expected no further events for already-known heads, got %#v", e)
	case <-time.After(100 * time.Millisecond):
	}
}
