// Package replicator implements the concurrent ancestor-fetching engine
// described in spec §4.5: given a set of remote head CIDs, it fetches the
// transitive closure of missing entries, validates each against the
// database's access controller, and feeds them into the oplog in causal
// order while emitting fine-grained progress.
package replicator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/peerlog/peerlog/internal/entry"
	"github.com/peerlog/peerlog/internal/oplog"
	"github.com/peerlog/peerlog/internal/replicationinfo"
)

// DefaultConcurrency is the default bound on simultaneous fetch+validate
// work, matching the "small, e.g. 32" default in spec §4.5.
const DefaultConcurrency = 32

const (
	maxFetchAttempts = 5
	baseBackoff      = 50 * time.Millisecond
	maxBackoff       = 5 * time.Second
)

// Store is the object-store slice the replicator fetches ancestors from.
type Store interface {
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
}

// Log is the narrow oplog capability the replicator depends on: whether it
// already has a CID, and the ability to merge a validated entry in.
type Log interface {
	Has(c cid.Cid) bool
	Merge(candidates []*entry.Entry) ([]*entry.Entry, error)
}

var _ Log = (*oplog.Oplog)(nil)

// pendingEntry is a validated entry still waiting on some ancestors.
type pendingEntry struct {
	entry   *entry.Entry
	missing map[string]bool // parent keys not yet resolved
}

// Replicator drives replication for a single database. One Replicator is
// created per Coordinator and lives as long as the database is open.
type Replicator struct {
	address   string
	log       Log
	store     Store
	verify    func(pubKeyHex string, msg, sig []byte) bool
	canAppend func(identity string) bool
	info      *replicationinfo.Info
	emit      func(Event)

	sem chan struct{}

	mu        sync.Mutex
	queued    map[string]bool
	inFlight  map[string]bool
	completed map[string]bool // resolved (merged) this session
	failed    map[string]bool
	dropped   map[string]bool
	pending   map[string]*pendingEntry
	waitingOn map[string][]string // parent key -> dependent keys

	ready            *readyQueue
	readyCond        *sync.Cond
	mergeQuit        chan struct{}
	mergedSinceFlush int
	wg               sync.WaitGroup
}

// AccessController is the narrow capability needed to validate entries
// independent of the oplog (so a dropped entry never touches the log).
type AccessController interface {
	CanAppend(identity string) bool
}

// New constructs a Replicator for address, draining fetched+validated
// entries into log, fetching missing objects from store, authorizing
// against ac, and emitting events via emit. concurrency<=0 uses
// DefaultConcurrency.
func New(address string, log Log, store Store, verify func(pubKeyHex string, msg, sig []byte) bool, ac AccessController, info *replicationinfo.Info, concurrency int, emit func(Event)) *Replicator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	r := &Replicator{
		address:   address,
		log:       log,
		store:     store,
		verify:    verify,
		canAppend: ac.CanAppend,
		info:      info,
		emit:      emit,
		sem:       make(chan struct{}, concurrency),
		queued:    make(map[string]bool),
		inFlight:  make(map[string]bool),
		completed: make(map[string]bool),
		failed:    make(map[string]bool),
		dropped:   make(map[string]bool),
		pending:   make(map[string]*pendingEntry),
		waitingOn: make(map[string][]string),
		ready:     newReadyQueue(),
		mergeQuit: make(chan struct{}),
	}
	r.readyCond = sync.NewCond(&r.mu)
	go r.mergeLoop()
	return r
}

// Enqueue submits remote head CIDs for replication. Already-known,
// in-flight, completed or permanently-failed CIDs are deduped silently
// (spec §8 invariant 6 / scenario S6: idempotent gossip).
func (r *Replicator) Enqueue(ctx context.Context, heads []cid.Cid) {
	for _, c := range heads {
		r.maybeFetch(ctx, c)
	}
}

// Wait blocks until every currently in-flight fetch has completed. Useful
// for tests that want a deterministic point to assert on; production
// callers observe progress via events instead.
func (r *Replicator) Wait() {
	r.wg.Wait()
}

// Close stops the merge loop and lets in-flight fetches finish; partially
// validated entries that never reach Ready are simply discarded, which is
// safe because entries are content-addressed and merges are idempotent.
func (r *Replicator) Close() {
	close(r.mergeQuit)
	r.mu.Lock()
	r.readyCond.Broadcast()
	r.mu.Unlock()
}

func (r *Replicator) maybeFetch(ctx context.Context, c cid.Cid) {
	key := c.KeyString()

	r.mu.Lock()
	if r.log.Has(c) || r.queued[key] || r.inFlight[key] || r.completed[key] || r.failed[key] || r.dropped[key] {
		r.mu.Unlock()
		return
	}
	r.queued[key] = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.fetchWorker(ctx, c)
}

func (r *Replicator) fetchWorker(ctx context.Context, c cid.Cid) {
	defer r.wg.Done()

	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	r.mu.Lock()
	delete(r.queued, c.KeyString())
	r.inFlight[c.KeyString()] = true
	r.mu.Unlock()

	b, err := r.fetchWithRetry(ctx, c)
	if err != nil {
		r.mu.Lock()
		delete(r.inFlight, c.KeyString())
		r.failed[c.KeyString()] = true
		r.mu.Unlock()
		return // terminal FetchFailed: dependents remain Pending indefinitely this session
	}

	e, err := entry.Decode(c, b)
	if err != nil {
		r.dropCascade(c.KeyString()) // MalformedEntry: dropped silently (debug-level in practice)
		return
	}

	r.info.ObserveTime(e.Clock.Time)
	r.emit(EventReplicate{Address: r.address, Entry: e})

	if err := entry.VerifySignature(e, r.verify); err != nil || !r.canAppend(e.Identity) {
		r.dropCascade(c.KeyString()) // InvalidEntry / Unauthorized
		return
	}

	r.onValidated(ctx, e)
}

// fetchWithRetry retries transient object-store failures with exponential
// backoff up to maxFetchAttempts before giving up permanently.
func (r *Replicator) fetchWithRetry(ctx context.Context, c cid.Cid) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
			if delay > maxBackoff {
				delay = maxBackoff
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		b, err := r.store.Get(ctx, c)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// onValidated transitions a validated entry to Pending or Ready depending
// on whether all of its parents are already resolved (present in the log
// or merged earlier this session), and recursively enqueues any parent
// that is missing entirely.
func (r *Replicator) onValidated(ctx context.Context, e *entry.Entry) {
	key := e.Hash.KeyString()

	r.mu.Lock()
	delete(r.inFlight, key)

	missing := make(map[string]bool)
	for _, p := range e.Next {
		pkey := p.KeyString()
		if r.log.Has(p) || r.completed[pkey] {
			continue
		}
		missing[pkey] = true
	}

	if len(missing) == 0 {
		r.ready.push(e)
		r.readyCond.Broadcast()
		r.mu.Unlock()
		for _, p := range e.Next {
			r.maybeFetch(ctx, p) // no-op if already known; keeps closure traversal going
		}
		return
	}

	r.pending[key] = &pendingEntry{entry: e, missing: missing}
	for pkey := range missing {
		r.waitingOn[pkey] = append(r.waitingOn[pkey], key)
	}
	r.mu.Unlock()

	for pkey := range missing {
		c, err := cid.Cast([]byte(pkey))
		if err == nil {
			r.maybeFetch(ctx, c)
		}
	}
}

// dropCascade marks key (and transitively, every pending entry depending on
// it) as dropped, never surfacing anything for them.
func (r *Replicator) dropCascade(key string) {
	r.mu.Lock()
	delete(r.inFlight, key)
	r.dropped[key] = true
	queue := []string{key}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		for _, dep := range r.waitingOn[k] {
			if r.dropped[dep] {
				continue
			}
			r.dropped[dep] = true
			delete(r.pending, dep)
			queue = append(queue, dep)
		}
		delete(r.waitingOn, k)
	}
	r.mu.Unlock()
}

// mergeLoop is the single serialized consumer of the ready queue: it merges
// one entry at a time, in total order, so replicate.progress events are
// emitted in the oplog's deterministic order and never before an entry's
// ancestors.
func (r *Replicator) mergeLoop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		for r.ready.Len() == 0 {
			select {
			case <-r.mergeQuit:
				return
			default:
			}
			r.readyCond.Wait()
			select {
			case <-r.mergeQuit:
				return
			default:
			}
		}
		e := r.ready.pop()
		r.mu.Unlock()

		added, err := r.log.Merge([]*entry.Entry{e})
		r.mu.Lock()
		if err != nil || len(added) == 0 {
			// Lost the race to another merge path (e.g. a local append); still
			// resolve dependents since the entry is now in the log either way.
		}

		key := e.Hash.KeyString()
		r.completed[key] = true
		delete(r.pending, key)
		r.mergedSinceFlush++
		r.info.RecordMerge(e.Clock.Time)

		snap := r.info.Snapshot()
		r.mu.Unlock()
		r.emit(EventReplicateProgress{Address: r.address, Cid: e.Hash, Entry: e, Progress: snap})
		r.mu.Lock()

		for _, dep := range r.waitingOn[key] {
			pe, ok := r.pending[dep]
			if !ok {
				continue
			}
			delete(pe.missing, key)
			if len(pe.missing) == 0 {
				delete(r.pending, dep)
				r.ready.push(pe.entry)
			}
		}
		delete(r.waitingOn, key)

		if r.ready.Len() == 0 && r.mergedSinceFlush > 0 {
			n := r.mergedSinceFlush
			r.mergedSinceFlush = 0
			r.mu.Unlock()
			r.emit(EventReplicated{Address: r.address, Length: n})
			r.mu.Lock()
		}
	}
}
