package coordinator

import (
	"github.com/ipfs/go-cid"

	"github.com/peerlog/peerlog/internal/entry"
	"github.com/peerlog/peerlog/internal/replicationinfo"
)

// Event is the sealed set of messages a Coordinator emits, replacing
// synchronous event-emitter callbacks with message-passing (spec §9) so a
// subscriber can never reenter the coordinator from inside a handler.
type Event interface{ isEvent() }

// Write fires after a local add() has durably reached the object store and
// the oplog, but before (or concurrently with) gossip publication — per
// spec §4.6, publication is best-effort and must not be waited on.
type Write struct {
	Address string
	Entry   *entry.Entry
	Heads   []cid.Cid
}

// Ready fires once after open() has finished its initial local load (from
// cache, before any remote sync completes).
type Ready struct {
	Address string
}

// Replicate mirrors replicator.EventReplicate.
type Replicate struct {
	Address string
	Entry   *entry.Entry
}

// ReplicateProgress mirrors replicator.EventReplicateProgress.
type ReplicateProgress struct {
	Address  string
	Cid      cid.Cid
	Entry    *entry.Entry
	Progress replicationinfo.Snapshot
}

// Replicated mirrors replicator.EventReplicated.
type Replicated struct {
	Address string
	Length  int
}

// Closed fires once close() (or drop()) has finished.
type Closed struct {
	Address string
}

// Peer fires when the gossip bus reports a new peer in this database's
// topic, after the coordinator has sent it the current heads.
type Peer struct {
	Address string
	Peer    string
}

func (Write) isEvent()             {}
func (Ready) isEvent()             {}
func (Replicate) isEvent()         {}
func (ReplicateProgress) isEvent() {}
func (Replicated) isEvent()        {}
func (Closed) isEvent()            {}
func (Peer) isEvent()              {}
