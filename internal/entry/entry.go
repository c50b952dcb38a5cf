// Package entry implements the atomic log record: a signed, content-
// addressed unit carrying a payload, its causal parents, and a logical
// clock. Entries are immutable once created.
package entry

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/canon"
)

// Clock is the per-entry logical timestamp: time is one greater than the
// maximum time of the entry's parents (or 1 for a tail), and id identifies
// the writer, used as a tiebreaker for entries written at the same time by
// different writers.
type Clock struct {
	ID   string `json:"id"`
	Time uint64 `json:"time"`
}

// signable is the subset of an Entry's fields that gets signed: everything
// except the hash and signature themselves.
type signable struct {
	ID       string    `json:"id"`
	Payload  []byte    `json:"payload"`
	Next     []string  `json:"next"`
	V        int       `json:"v"`
	Clock    Clock     `json:"clock"`
	Key      string    `json:"key"`
	Identity string    `json:"identity"`
}

// Entry is a single log record. Field order here matches spec §6's
// canonical form (hash, id, payload, next, v, clock, key, identity, sig);
// Hash is never included in the bytes that get hashed or signed.
type Entry struct {
	Hash      cid.Cid  `json:"hash"`
	ID        string   `json:"id"`
	Payload   []byte   `json:"payload"`
	Next      []cid.Cid `json:"next"`
	V         int      `json:"v"`
	Clock     Clock    `json:"clock"`
	Key       string   `json:"key"`
	Identity  string   `json:"identity"`
	Signature []byte   `json:"sig"`
}

// Signer is the narrow key-store capability Create needs: sign bytes under
// a public identity. Concrete key stores live in internal/keystore.
type Signer interface {
	PublicKey() string
	Sign(b []byte) ([]byte, error)
}

// Parent is anything Create can read an ancestor's clock and CID from —
// satisfied directly by *Entry.
type Parent interface {
	GetCid() cid.Cid
	GetClock() Clock
}

// GetCid implements Parent.
func (e *Entry) GetCid() cid.Cid { return e.Hash }

// GetClock implements Parent.
func (e *Entry) GetClock() Clock { return e.Clock }

// Create builds, signs, and content-addresses a new entry. clock.time is
// one greater than the maximum clock.time among parents (0 if there are
// none, so the first entry is 1).
func Create(logIdentifier string, signer Signer, payload []byte, parents []Parent) (*Entry, error) {
	next := make([]cid.Cid, len(parents))
	var maxTime uint64
	for i, p := range parents {
		next[i] = p.GetCid()
		if t := p.GetClock().Time; t > maxTime {
			maxTime = t
		}
	}

	e := &Entry{
		ID:       logIdentifier,
		Payload:  payload,
		Next:     next,
		V:        1,
		Clock:    Clock{ID: signer.PublicKey(), Time: maxTime + 1},
		Key:      signer.PublicKey(),
		Identity: signer.PublicKey(),
	}

	b, err := e.signableBytes()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(b)
	if err != nil {
		return nil, errors.Wrap(err, "entry: sign")
	}
	e.Signature = sig

	hash, _, err := canon.SumValue(struct {
		signable
		Sig []byte `json:"sig"`
	}{signable: e.toSignable(), Sig: sig})
	if err != nil {
		return nil, err
	}
	e.Hash = hash
	return e, nil
}

func (e *Entry) toSignable() signable {
	next := make([]string, len(e.Next))
	for i, n := range e.Next {
		next[i] = n.String()
	}
	return signable{
		ID:       e.ID,
		Payload:  e.Payload,
		Next:     next,
		V:        e.V,
		Clock:    e.Clock,
		Key:      e.Key,
		Identity: e.Identity,
	}
}

func (e *Entry) signableBytes() ([]byte, error) {
	return canon.Marshal(e.toSignable())
}

// Verifier resolves write authorization (signature checks are done
// separately, by VerifySignature); satisfied by
// internal/accesscontroller.Controller.
type Verifier interface {
	CanAppend(identity string) bool
}

// Error kinds surfaced by Verify, matching spec §7.
var (
	ErrInvalidEntry  = errors.New("entry: invalid signature or content address")
	ErrUnauthorized  = errors.New("entry: unauthorized")
	ErrMalformed     = errors.New("entry: malformed")
)

// VerifySignature recomputes e's CID from its canonical bytes (plus its
// claimed signature) and returns ErrInvalidEntry if it doesn't match e.Hash
// — this catches both a forged signature and a tampered field.
func VerifySignature(e *Entry, verifySig func(pubKey string, msg, sig []byte) bool) error {
	if e.ID == "" || e.Identity == "" || e.Key == "" {
		return errors.Wrap(ErrMalformed, "entry: missing identifier fields")
	}
	b, err := e.signableBytes()
	if err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	wantHash, _, err := canon.SumValue(struct {
		signable
		Sig []byte `json:"sig"`
	}{signable: e.toSignable(), Sig: e.Signature})
	if err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	if !wantHash.Equals(e.Hash) {
		return errors.Wrap(ErrInvalidEntry, "entry: cid mismatch")
	}
	if !verifySig(e.Identity, b, e.Signature) {
		return errors.Wrap(ErrInvalidEntry, "entry: signature mismatch")
	}
	return nil
}

// Verify performs the full spec §4.3 check: signature, content address,
// and access-controller authorization, in that order so a rejected
// signature never reaches the policy check.
func Verify(e *Entry, verifySig func(pubKey string, msg, sig []byte) bool, ac Verifier) error {
	if err := VerifySignature(e, verifySig); err != nil {
		return err
	}
	if !ac.CanAppend(e.Identity) {
		return ErrUnauthorized
	}
	return nil
}

// Store is the narrow object-store capability Put needs.
type Store interface {
	Put(b []byte) (cid.Cid, error)
}

// Put persists e's canonical bytes (including its signature) in store and
// confirms the returned CID matches e.Hash — a mismatch would mean the
// store's hash function disagrees with canon's, which should never happen
// within one process but is cheap to assert.
func Put(ctx context.Context, store Store, e *Entry) error {
	b, err := canon.Marshal(struct {
		signable
		Sig []byte `json:"sig"`
	}{signable: e.toSignable(), Sig: e.Signature})
	if err != nil {
		return err
	}
	c, err := store.Put(b)
	if err != nil {
		return errors.Wrap(err, "entry: put")
	}
	if !c.Equals(e.Hash) {
		return errors.Wrap(ErrMalformed, "entry: store cid disagrees with entry hash")
	}
	return nil
}

// Fetcher is the narrow object-store capability Decode's caller needs.
type Fetcher interface {
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
}

// Get fetches and decodes the entry at c from store.
func Get(ctx context.Context, store Fetcher, c cid.Cid) (*Entry, error) {
	b, err := store.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	return Decode(c, b)
}

// wireEntry mirrors Entry but with Next as strings, matching the JSON
// actually stored (canon.Marshal encodes signable.Next as []string).
type wireEntry struct {
	signable
	Sig []byte `json:"sig"`
}

// Decode parses the canonical bytes for an entry known to have CID c,
// reconstructing the typed Next/Clock fields.
func Decode(c cid.Cid, b []byte) (*Entry, error) {
	var w wireEntry
	if err := canon.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	next := make([]cid.Cid, len(w.Next))
	for i, s := range w.Next {
		pc, err := canon.ParseCid(s)
		if err != nil {
			return nil, errors.Wrap(ErrMalformed, err.Error())
		}
		next[i] = pc
	}
	return &Entry{
		Hash:      c,
		ID:        w.ID,
		Payload:   w.Payload,
		Next:      next,
		V:         w.V,
		Clock:     w.Clock,
		Key:       w.Key,
		Identity:  w.Identity,
		Signature: w.Sig,
	}, nil
}
