// Package oplog implements the append-only, hash-linked Merkle-DAG of
// signed entries that forms a single database's history (spec §4.4). It is
// the hard core of this module: it owns heads/tails bookkeeping, the
// deterministic total order, and the merge operation the replicator drives.
package oplog

import (
	"context"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/entry"
)

// VerifyFunc checks a signature over msg against a hex-encoded public key;
// satisfied by keystore.Verify.
type VerifyFunc func(pubKeyHex string, msg, sig []byte) bool

// AccessController is the narrow capability Oplog needs to authorize
// entries; satisfied by *accesscontroller.Controller.
type AccessController interface {
	CanAppend(identity string) bool
}

// Store is the object-store slice Oplog needs to persist and fetch
// entries.
type Store interface {
	Put(b []byte) (cid.Cid, error)
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
}

// Oplog is the local, mutable log for one database. mu guards its maps, so
// every method is safe to call concurrently, but Append reads the heads
// and inserts the new entry under two separate lock holds: two concurrent
// Appends can take the same parents and leave two heads. Coordinator.Add
// adds no serialization of its own on top of this.
type Oplog struct {
	mu       sync.Mutex
	id       string
	identity entry.Signer
	verify   VerifyFunc
	ac       AccessController

	entries map[string]*entry.Entry // keyed by cid.KeyString()
	heads   map[string]bool
	tails   map[string]bool
}

// New returns an empty Oplog for database id, signing local appends with
// identity and authorizing both local and remote entries against ac.
func New(id string, identity entry.Signer, verify VerifyFunc, ac AccessController) *Oplog {
	return &Oplog{
		id:       id,
		identity: identity,
		verify:   verify,
		ac:       ac,
		entries:  make(map[string]*entry.Entry),
		heads:    make(map[string]bool),
		tails:    make(map[string]bool),
	}
}

// ID returns the log's identifier (also the entry.Entry.ID of everything in
// it).
func (o *Oplog) ID() string { return o.id }

// Length returns the number of entries currently in the log.
func (o *Oplog) Length() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Has reports whether c is already present.
func (o *Oplog) Has(c cid.Cid) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.entries[c.KeyString()]
	return ok
}

// Get returns the entry for c, if present.
func (o *Oplog) Get(c cid.Cid) (*entry.Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[c.KeyString()]
	return e, ok
}

// Heads returns the current head CIDs: entries not referenced as a parent
// by any other entry in the log.
func (o *Oplog) Heads() []cid.Cid {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.headsLocked()
}

func (o *Oplog) headsLocked() []cid.Cid {
	out := make([]cid.Cid, 0, len(o.heads))
	for k := range o.heads {
		out = append(out, o.entries[k].Hash)
	}
	sortCids(out)
	return out
}

// Tails returns entries with no parents.
func (o *Oplog) Tails() []cid.Cid {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]cid.Cid, 0, len(o.tails))
	for k := range o.tails {
		out = append(out, o.entries[k].Hash)
	}
	sortCids(out)
	return out
}

// All returns every entry in the log's deterministic total order: (clock
// time ascending, clock id ascending, cid ascending).
func (o *Oplog) All() []*entry.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*entry.Entry, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// sortEntries sorts in place by the spec §3 total order.
func sortEntries(es []*entry.Entry) {
	sort.Slice(es, func(i, j int) bool { return less(es[i], es[j]) })
}

func less(a, b *entry.Entry) bool {
	if a.Clock.Time != b.Clock.Time {
		return a.Clock.Time < b.Clock.Time
	}
	if a.Clock.ID != b.Clock.ID {
		return a.Clock.ID < b.Clock.ID
	}
	return a.Hash.String() < b.Hash.String()
}

func sortCids(cs []cid.Cid) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].String() < cs[j].String() })
}

// Append signs, stores, and inserts a new entry whose parents are the
// current heads; it becomes the log's sole new head. Concurrent local
// appends on the same Oplog must be externally serialized — Append itself
// only guards its own bookkeeping, not append-ordering semantics.
func (o *Oplog) Append(ctx context.Context, store Store, payload []byte) (*entry.Entry, error) {
	o.mu.Lock()
	parents := make([]entry.Parent, 0, len(o.heads))
	for k := range o.heads {
		parents = append(parents, o.entries[k])
	}
	o.mu.Unlock()

	e, err := entry.Create(o.id, o.identity, payload, parents)
	if err != nil {
		return nil, err
	}
	if err := entry.Put(ctx, store, e); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.insertLocked(e)
	return e, nil
}

// insertLocked adds e to entries and recomputes heads/tails. Callers must
// hold o.mu.
func (o *Oplog) insertLocked(e *entry.Entry) {
	key := e.Hash.KeyString()
	o.entries[key] = e
	if len(e.Next) == 0 {
		o.tails[key] = true
	}
	for _, parentCid := range e.Next {
		delete(o.heads, parentCid.KeyString())
	}
	for _, other := range o.entries {
		for _, p := range other.Next {
			if p.KeyString() == key {
				return // already referenced as a parent, so not a head
			}
		}
	}
	o.heads[key] = true
}

// Merge authenticates and inserts every candidate not already present,
// recomputing heads afterward. It is idempotent: merging the same set
// twice leaves length and heads unchanged the second time. The returned
// slice lists only entries newly added by this call, in no particular
// order (callers wanting total order should call All() afterward).
func (o *Oplog) Merge(candidates []*entry.Entry) ([]*entry.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var added []*entry.Entry
	for _, e := range candidates {
		key := e.Hash.KeyString()
		if _, ok := o.entries[key]; ok {
			continue
		}
		if err := entry.VerifySignature(e, o.verify); err != nil {
			return added, err
		}
		if !o.ac.CanAppend(e.Identity) {
			return added, errors.Wrapf(entry.ErrUnauthorized, "entry %s", e.Hash)
		}
		o.insertLocked(e)
		added = append(added, e)
	}
	return added, nil
}

// Traverse walks backward from startHeads over parents, breadth-first,
// yielding entries already present in the log, stopping once amount
// entries have been yielded (amount<0 means unbounded) or every branch has
// reached a CID in endHashes. It is for callers wanting a bounded-depth
// walk of local history; the replicator does not use it.
func (o *Oplog) Traverse(startHeads []cid.Cid, amount int, endHashes map[string]bool) []*entry.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	visited := make(map[string]bool)
	queue := append([]cid.Cid(nil), startHeads...)
	var out []*entry.Entry

	for len(queue) > 0 && (amount < 0 || len(out) < amount) {
		c := queue[0]
		queue = queue[1:]
		key := c.KeyString()
		if visited[key] || endHashes[key] {
			continue
		}
		visited[key] = true
		e, ok := o.entries[key]
		if !ok {
			continue
		}
		out = append(out, e)
		queue = append(queue, e.Next...)
	}
	sortEntries(out)
	return out
}
