package store

import (
	"context"
	"encoding/json"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/entry"
)

// Feed is an EventLog with soft delete: Remove appends a tombstone entry
// referencing the removed entry's CID rather than mutating history, so the
// feed's append-only, content-addressed guarantees are preserved even
// across a delete.
type Feed struct {
	c *coordinator.Coordinator
}

// NewFeed wraps an already-open Coordinator as a Feed view.
func NewFeed(c *coordinator.Coordinator) *Feed { return &Feed{c: c} }

// Add appends value, JSON-encoded, as a new feed item.
func (f *Feed) Add(ctx context.Context, value any) (*entry.Entry, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	payload, err := encodeOp(op{Kind: kindPut, Value: b})
	if err != nil {
		return nil, err
	}
	return f.c.Add(ctx, payload)
}

// Remove appends a tombstone referencing target's CID.
func (f *Feed) Remove(ctx context.Context, target cid.Cid) (*entry.Entry, error) {
	payload, err := encodeOp(op{Kind: kindDel, Key: target.String()})
	if err != nil {
		return nil, err
	}
	return f.c.Add(ctx, payload)
}

// FeedEntry pairs a surviving Add entry with its raw JSON value.
type FeedEntry struct {
	Entry *entry.Entry
	Value json.RawMessage
}

// All folds the oplog in total order, applying tombstones, and returns
// every surviving item in the order it was added.
func (f *Feed) All() ([]FeedEntry, error) {
	removed := make(map[string]bool)
	var puts []*entry.Entry
	raw := make(map[string]json.RawMessage)

	for _, e := range allOrdered(f.c) {
		o, err := decodeOp(e.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "feed: entry %s", e.Hash)
		}
		switch o.Kind {
		case kindPut:
			puts = append(puts, e)
			raw[e.Hash.KeyString()] = o.Value
		case kindDel:
			removed[o.Key] = true
		}
	}

	out := make([]FeedEntry, 0, len(puts))
	for _, e := range puts {
		if removed[e.Hash.String()] {
			continue
		}
		out = append(out, FeedEntry{Entry: e, Value: raw[e.Hash.KeyString()]})
	}
	return out, nil
}
