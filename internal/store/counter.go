package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/entry"
)

// counterPayload is a Counter entry's sole content: a signed delta.
type counterPayload struct {
	Delta int64 `json:"delta"`
}

// Counter materializes the oplog as a running sum of every Increase call's
// delta. It never needs conflict resolution: summation is commutative, so
// merge order never affects the materialized value.
type Counter struct {
	c *coordinator.Coordinator
}

// NewCounter wraps an already-open Coordinator as a Counter view.
func NewCounter(c *coordinator.Coordinator) *Counter { return &Counter{c: c} }

// Increase appends a signed delta.
func (ct *Counter) Increase(ctx context.Context, delta int64) (*entry.Entry, error) {
	b, err := json.Marshal(counterPayload{Delta: delta})
	if err != nil {
		return nil, err
	}
	return ct.c.Add(ctx, b)
}

// Value returns the sum of every delta in the oplog.
func (ct *Counter) Value() (int64, error) {
	var total int64
	for _, e := range allOrdered(ct.c) {
		var p counterPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, errors.Wrapf(err, "counter: entry %s", e.Hash)
		}
		total += p.Delta
	}
	return total, nil
}
