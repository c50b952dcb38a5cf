// Package coordinator implements the Database Coordinator (spec §4.6): the
// component that wires one oplog, one replicator, and one gossip
// subscription together, and is the only thing application code or a typed
// store view talks to.
//
// Every oplog mutation is already serialized by oplog.Oplog's own mutex,
// and every remote merge passes through the replicator's single
// merge-loop goroutine, so — per spec §5's "Implementations may use OS
// threads provided every mutation ... is serialized behind a single mutex
// or actor-style inbox" — Coordinator does not add a second actor layer on
// top; it relies on those two existing serialization points plus its own
// eventQueue for ordered, non-reentrant event delivery.
package coordinator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/accesscontroller"
	"github.com/peerlog/peerlog/internal/address"
	"github.com/peerlog/peerlog/internal/cache"
	"github.com/peerlog/peerlog/internal/canon"
	"github.com/peerlog/peerlog/internal/entry"
	"github.com/peerlog/peerlog/internal/gossip"
	"github.com/peerlog/peerlog/internal/keystore"
	"github.com/peerlog/peerlog/internal/objectstore"
	"github.com/peerlog/peerlog/internal/oplog"
	"github.com/peerlog/peerlog/internal/replicationinfo"
	"github.com/peerlog/peerlog/internal/replicator"
)

// Coordinator-level error kinds (spec §7); replicator/object-store failures
// never surface this way — they are retried or dropped internally.
var (
	ErrInvalidAddress  = address.ErrInvalidAddress
	ErrUnknownDatabase = errors.New("coordinator: unknown database")
	ErrTypeMismatch    = errors.New("coordinator: manifest type mismatch")
	ErrInvalidType     = errors.New("coordinator: invalid database type")
	ErrAlreadyExists   = errors.New("coordinator: database already exists")
)

// Options mirrors spec §6's coordinator options.
type Options struct {
	Create    bool
	Type      address.Type
	Overwrite bool
	LocalOnly bool
	Sync      bool
	Replicate bool
	Write     []string // public keys granted the write role; empty ⇒ creator only
	Directory string
}

// Deps bundles the external collaborators spec §6 treats as out of scope:
// the object store, the gossip bus, the key store, and the persistent
// cache. One set of Deps is typically shared by every Coordinator in a
// process.
type Deps struct {
	Store       objectstore.Store
	Bus         gossip.Bus
	Keys        *keystore.Store
	Cache       cache.Cache
	SelfID      string // keystore identity this node signs local writes with
	Concurrency int    // replicator fetch concurrency; 0 uses replicator.DefaultConcurrency
}

// IteratorOptions controls iterator()'s window over the oplog's total
// order, matching spec §4.6.
type IteratorOptions struct {
	Limit            int // default 1; -1 = unlimited
	Gt, Gte, Lt, Lte *cid.Cid
}

// Coordinator owns one database's oplog, replicator, access controller,
// and gossip subscription.
type Coordinator struct {
	addr     address.Address
	manifest address.Manifest
	ac       *accesscontroller.Controller
	signer   *keystore.Key

	deps Deps

	log  *oplog.Oplog
	rep  *replicator.Replicator
	info *replicationinfo.Info

	events *eventQueue

	closeOnce sync.Once
}

// Address returns the database address this coordinator owns.
func (c *Coordinator) Address() address.Address { return c.addr }

// Manifest returns the database's immutable manifest.
func (c *Coordinator) Manifest() address.Manifest { return c.manifest }

// Events returns the channel of Events this coordinator emits, in order.
// It is closed once Close has finished flushing pending events.
func (c *Coordinator) Events() <-chan Event { return c.events.out }

// Open resolves nameOrAddress (a full "/peerlog/<cid>/<name>" address or a
// bare local name) per spec §4.6, creating a new database when
// opts.Create is set, and returns a ready Coordinator subscribed to
// gossip.
func Open(ctx context.Context, nameOrAddress string, opts Options, deps Deps) (*Coordinator, error) {
	selfID := deps.SelfID
	if selfID == "" {
		selfID = "default"
	}
	signer, err := deps.Keys.GetOrCreate(selfID)
	if err != nil {
		return nil, errors.Wrap(err, "coordinator: resolve signing identity")
	}

	addr, manifest, ac, err := resolve(ctx, nameOrAddress, opts, deps, signer)
	if err != nil {
		return nil, err
	}
	if opts.Type != "" && manifest.Type != opts.Type {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s: manifest is %s", addr, manifest.Type)
	}

	log := oplog.New(addr.String(), signer, keystore.Verify, ac)
	info := replicationinfo.New()
	events := newEventQueue()

	c := &Coordinator{
		addr:     addr,
		manifest: manifest,
		ac:       ac,
		signer:   signer,
		deps:     deps,
		log:      log,
		info:     info,
		events:   events,
	}

	concurrency := deps.Concurrency
	c.rep = replicator.New(addr.String(), log, storeAdapter{deps.Store}, keystore.Verify, ac, info, concurrency, c.onReplicatorEvent)

	if err := deps.Bus.Subscribe(addr.String(), c.onGossipMessage, c.onGossipPeerJoined); err != nil {
		return nil, errors.Wrap(err, "coordinator: subscribe gossip")
	}

	if !opts.Sync {
		if cached, ok := deps.Cache.Get(cache.HeadsKey(addr.String())); ok {
			if heads, err := decodeHeads(cached); err == nil {
				c.rep.Enqueue(ctx, heads)
			}
		}
	}

	c.events.push(Ready{Address: addr.String()})
	return c, nil
}

func resolve(ctx context.Context, nameOrAddress string, opts Options, deps Deps, signer *keystore.Key) (address.Address, address.Manifest, *accesscontroller.Controller, error) {
	if addr, err := address.Parse(nameOrAddress); err == nil {
		b, err := deps.Store.Get(ctx, addr.Root)
		if err != nil {
			return address.Address{}, address.Manifest{}, nil, err
		}
		manifest, err := address.ParseManifest(b)
		if err != nil {
			return address.Address{}, address.Manifest{}, nil, err
		}
		if opts.Create && !opts.Overwrite {
			return address.Address{}, address.Manifest{}, nil, errors.Wrapf(ErrAlreadyExists, "%s", addr)
		}
		ac, err := loadAccessController(ctx, deps, manifest)
		if err != nil {
			return address.Address{}, address.Manifest{}, nil, err
		}
		return addr, manifest, ac, nil
	}

	name := nameOrAddress
	if cached, ok := deps.Cache.Get(cache.ManifestKey(name)); ok && !opts.Overwrite {
		if opts.Create {
			return address.Address{}, address.Manifest{}, nil, errors.Wrapf(ErrAlreadyExists, "%s", name)
		}
		manifestCid, err := canon.ParseCid(string(cached))
		if err != nil {
			return address.Address{}, address.Manifest{}, nil, err
		}
		b, err := deps.Store.Get(ctx, manifestCid)
		if err != nil {
			return address.Address{}, address.Manifest{}, nil, err
		}
		manifest, err := address.ParseManifest(b)
		if err != nil {
			return address.Address{}, address.Manifest{}, nil, err
		}
		ac, err := loadAccessController(ctx, deps, manifest)
		if err != nil {
			return address.Address{}, address.Manifest{}, nil, err
		}
		return address.Address{Root: manifestCid, Name: name}, manifest, ac, nil
	}

	if opts.LocalOnly {
		return address.Address{}, address.Manifest{}, nil, errors.Wrapf(ErrUnknownDatabase, "%s", name)
	}
	if !opts.Create {
		return address.Address{}, address.Manifest{}, nil, errors.Wrapf(ErrUnknownDatabase, "%s", name)
	}
	typ := opts.Type
	if typ == "" || !typ.IsKnown() {
		return address.Address{}, address.Manifest{}, nil, errors.Wrapf(ErrInvalidType, "%q", typ)
	}

	ac := accesscontroller.NewWithWriters(opts.Write, signer.PublicKey())
	acCid, err := ac.Save(storeAdapter{deps.Store})
	if err != nil {
		return address.Address{}, address.Manifest{}, nil, err
	}
	manifestCid, err := address.CreateManifest(storeAdapter{deps.Store}, name, typ, acCid)
	if err != nil {
		return address.Address{}, address.Manifest{}, nil, err
	}
	if err := deps.Cache.Set(cache.ManifestKey(name), []byte(manifestCid.String())); err != nil {
		return address.Address{}, address.Manifest{}, nil, err
	}
	manifest := address.Manifest{Name: name, Type: typ, AccessController: acCid.String()}
	return address.Address{Root: manifestCid, Name: name}, manifest, ac, nil
}

func loadAccessController(ctx context.Context, deps Deps, manifest address.Manifest) (*accesscontroller.Controller, error) {
	acCid, err := canon.ParseCid(manifest.AccessController)
	if err != nil {
		return nil, err
	}
	return accesscontroller.Load(ctx, deps.Store, acCid)
}

// Add delegates to the oplog, persists the new heads to cache, emits Write,
// and publishes the new heads on the gossip topic (best-effort: a publish
// failure is not surfaced, since add's durability contract is about the
// object store and oplog, not the network).
func (c *Coordinator) Add(ctx context.Context, payload []byte) (*entry.Entry, error) {
	e, err := c.log.Append(ctx, storeAdapter{c.deps.Store}, payload)
	if err != nil {
		return nil, err
	}
	heads := c.log.Heads()
	if b, err := encodeHeads(heads); err == nil {
		_ = c.deps.Cache.Set(cache.HeadsKey(c.addr.String()), b)
	}
	c.events.push(Write{Address: c.addr.String(), Entry: e, Heads: heads})
	if b, err := encodeHeads(heads); err == nil {
		_ = c.deps.Bus.Publish(c.addr.String(), b)
	}
	return e, nil
}

// Sync feeds remoteHeads to the replicator. Idempotent: a CID already
// known, in flight, or previously rejected is deduped silently.
func (c *Coordinator) Sync(ctx context.Context, remoteHeads []cid.Cid) {
	c.rep.Enqueue(ctx, remoteHeads)
}

// Iterator returns entries from the oplog's total order matching opts.
func (c *Coordinator) Iterator(opts IteratorOptions) []*entry.Entry {
	all := c.log.All()

	lo, hi := 0, len(all)
	if opts.Gt != nil {
		if idx, ok := positionOf(all, *opts.Gt); ok {
			lo = idx + 1
		} else {
			lo = len(all)
		}
	}
	if opts.Gte != nil {
		if idx, ok := positionOf(all, *opts.Gte); ok {
			lo = idx
		} else {
			lo = len(all)
		}
	}
	if opts.Lt != nil {
		if idx, ok := positionOf(all, *opts.Lt); ok {
			hi = idx
		} else {
			hi = 0
		}
	}
	if opts.Lte != nil {
		if idx, ok := positionOf(all, *opts.Lte); ok {
			hi = idx + 1
		} else {
			hi = 0
		}
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(all) {
		hi = len(all)
	}
	if lo > hi {
		lo = hi
	}
	window := all[lo:hi]

	limit := opts.Limit
	if limit == 0 {
		limit = 1
	}
	if limit < 0 || limit > len(window) {
		return window
	}
	return window[:limit]
}

// positionOf returns target's index in all, which All() already returns in
// the oplog's total order — the CID strings themselves are not sorted, so
// a window must be taken relative to this position, never by lexically
// searching the slice. Reports false if target isn't present in all, in
// which case its place in the order is unknowable and the caller treats
// the bound as unsatisfiable rather than guessing.
func positionOf(all []*entry.Entry, target cid.Cid) (int, bool) {
	for i, e := range all {
		if e.Hash.Equals(target) {
			return i, true
		}
	}
	return -1, false
}

// Close unsubscribes from gossip, stops the replicator, and emits Closed.
// Idempotent. It does not close the shared object store, cache, or gossip
// bus — their lifetime is the caller's to manage (spec §9: a coordinator
// must not assume it owns the object store's lifetime).
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.deps.Bus.Unsubscribe(c.addr.String())
		c.rep.Close()
		c.events.push(Closed{Address: c.addr.String()})
		c.events.close()
	})
	return err
}

// Drop closes the coordinator, resets its replication info, and deletes
// its cache entries.
func (c *Coordinator) Drop() error {
	if err := c.Close(); err != nil {
		return err
	}
	c.info.Reset()
	_ = c.deps.Cache.Delete(cache.ManifestKey(c.addr.Name))
	_ = c.deps.Cache.Delete(cache.HeadsKey(c.addr.String()))
	return nil
}

func (c *Coordinator) onGossipMessage(topic string, peer string, payload []byte) {
	heads, err := decodeHeads(payload)
	if err != nil {
		return
	}
	c.Sync(context.Background(), heads)
}

func (c *Coordinator) onGossipPeerJoined(topic string, peer string, room gossip.Room) {
	heads := c.log.Heads()
	if len(heads) == 0 {
		return
	}
	b, err := encodeHeads(heads)
	if err != nil {
		return
	}
	_ = room.SendTo(peer, b)
	c.events.push(Peer{Address: c.addr.String(), Peer: peer})
}

func (c *Coordinator) onReplicatorEvent(e replicator.Event) {
	switch ev := e.(type) {
	case replicator.EventReplicate:
		c.events.push(Replicate{Address: ev.Address, Entry: ev.Entry})
	case replicator.EventReplicateProgress:
		c.events.push(ReplicateProgress{Address: ev.Address, Cid: ev.Cid, Entry: ev.Entry, Progress: ev.Progress})
	case replicator.EventReplicated:
		c.events.push(Replicated{Address: ev.Address, Length: ev.Length})
	}
}

// encodeHeads/decodeHeads serialize a head set as JSON for gossip payloads
// and cache storage.
func encodeHeads(heads []cid.Cid) ([]byte, error) {
	ss := make([]string, len(heads))
	for i, h := range heads {
		ss[i] = h.String()
	}
	return json.Marshal(ss)
}

func decodeHeads(b []byte) ([]cid.Cid, error) {
	var ss []string
	if err := json.Unmarshal(b, &ss); err != nil {
		return nil, err
	}
	out := make([]cid.Cid, 0, len(ss))
	for _, s := range ss {
		c, err := canon.ParseCid(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// storeAdapter narrows objectstore.Store to the Put-only or Put+Get slices
// entry/accesscontroller/address/oplog/replicator each need.
type storeAdapter struct{ objectstore.Store }
