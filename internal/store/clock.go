package store

// Conflict resolution for KeyValue and DocStore.
//
// The teacher's original key-value engine tracked a per-node vector clock
// and had to distinguish three cases on every remote write: strictly
// newer, strictly older, or truly concurrent (requiring a last-write-at
// tiebreak). This system's entries don't need that: every entry already
// carries the single logical clock described in spec.md §3
// (clock.time, clock.id), and the oplog's total order is already a
// complete linearization of every writer's history — there is no
// concurrent case left unresolved by the time entries reach a materialized
// view. winner exists anyway, as an explicit, named decision point rather
// than an implicit "last one replaces the map" fold, because conflict
// resolution is exactly the kind of thing a reader should be able to find
// by name when a materialized value looks surprising.

import "github.com/peerlog/peerlog/internal/entry"

// winner returns whichever of a, b the oplog's total order places later —
// the one a fold-to-map materialization should keep.
func winner(a, b *entry.Entry) *entry.Entry {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Clock.Time != b.Clock.Time {
		if a.Clock.Time > b.Clock.Time {
			return a
		}
		return b
	}
	if a.Clock.ID != b.Clock.ID {
		if a.Clock.ID > b.Clock.ID {
			return a
		}
		return b
	}
	if a.Hash.String() > b.Hash.String() {
		return a
	}
	return b
}
