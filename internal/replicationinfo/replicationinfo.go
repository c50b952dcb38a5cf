// Package replicationinfo implements the monotonic replication progress
// accumulator described in spec §3/§4.7: {max, progress, have}.
package replicationinfo

import "sync"

// Snapshot is a read-only copy of an Info taken at a point in time — event
// payloads carry a Snapshot, never a live reference, so listeners can't
// observe later mutation (spec §9, "mutable _replicationInfo" design note).
type Snapshot struct {
	Max      uint64
	Progress uint64
	Have     map[uint64]bool
}

// Info is the live, mutable accumulator a Replicator updates as it
// discovers heads and merges entries. It is safe for concurrent use.
type Info struct {
	mu       sync.Mutex
	max      uint64
	progress uint64
	have     map[uint64]bool
}

// New returns a zeroed Info.
func New() *Info {
	return &Info{have: make(map[uint64]bool)}
}

// ObserveTime records that a time-slot has been observed to exist — called
// the moment a head or ancestor is first inspected, before it is
// necessarily fetched or merged (spec §4.5 "fresh replication scenario").
func (i *Info) ObserveTime(t uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if t > i.max {
		i.max = t
	}
	i.have[t] = true
}

// RecordMerge records the successful merge of an entry at time t: progress
// increments and t's slot is marked materialized.
func (i *Info) RecordMerge(t uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.progress++
	i.have[t] = true
}

// Reset zeroes the accumulator; called only on drop (spec §3).
func (i *Info) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.max = 0
	i.progress = 0
	i.have = make(map[uint64]bool)
}

// Snapshot captures the current state for an event payload.
func (i *Info) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	have := make(map[uint64]bool, len(i.have))
	for k, v := range i.have {
		have[k] = v
	}
	return Snapshot{Max: i.max, Progress: i.progress, Have: have}
}

// Progress returns the current progress counter.
func (i *Info) Progress() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.progress
}
