// Package objectstore defines the content-addressed object store contract
// (spec §6) and ships reference implementations. The object store is a
// deliberate external collaborator — it is not the hard part of this
// system — but the replicator and coordinator need a real one to drive
// against, so this package provides an in-memory store for tests, a
// durable bbolt-backed store for a running node, and RemoteStore, which
// wraps a local Store and fetches misses over HTTP from peers chosen by
// PeerStore's hash ring.
package objectstore

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// Sentinel errors surfaced by every Store implementation.
var (
	ErrNotFound  = errors.New("objectstore: not found")
	ErrTimeout   = errors.New("objectstore: timeout")
	ErrTransport = errors.New("objectstore: transport failure")
)

// Store is the object-store contract external to this module: content goes
// in, a CID comes out; the same bytes always produce the same CID.
type Store interface {
	Put(b []byte) (cid.Cid, error)
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
	// Pin marks an object as not eligible for garbage collection. Pinning
	// policy itself lives outside this module; Store only needs to expose
	// the hook so a coordinator can protect heads it still references.
	Pin(c cid.Cid) error
}
