package replicator

import (
	"github.com/ipfs/go-cid"

	"github.com/peerlog/peerlog/internal/entry"
	"github.com/peerlog/peerlog/internal/replicationinfo"
)

// Event is the sealed set of messages a Replicator emits. Coordinators
// dispatch these to their own subscribers rather than letting listeners
// call back synchronously into the replicator (spec §9's message-passing
// redesign).
type Event interface{ isEvent() }

// EventReplicate fires once per new entry the moment the replicator begins
// processing its fetch.
type EventReplicate struct {
	Address string
	Entry   *entry.Entry
}

// EventReplicateProgress fires once per entry, in the oplog's deterministic
// total order, the moment it is merged into the log.
type EventReplicateProgress struct {
	Address  string
	Cid      cid.Cid
	Entry    *entry.Entry
	Progress replicationinfo.Snapshot
}

// EventReplicated fires per merge batch; Length is the number of entries
// merged in that batch.
type EventReplicated struct {
	Address string
	Length  int
}

func (EventReplicate) isEvent()         {}
func (EventReplicateProgress) isEvent() {}
func (EventReplicated) isEvent()        {}
