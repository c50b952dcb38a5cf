package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/entry"
)

// KeyValue materializes the oplog as a map, folding entries in total
// order: a later put or delete for the same key always overrides an
// earlier one, since the oplog's total order (spec §3) is already a
// deterministic, conflict-free linearization of every writer's clock —
// unlike the teacher's vector-clock store, no separate conflict-relation
// check is needed here, because entry.Clock plus the cid tiebreak already
// produces a strict order with no concurrent case left unresolved.
type KeyValue struct {
	c *coordinator.Coordinator
}

// NewKeyValue wraps an already-open Coordinator as a KeyValue view.
func NewKeyValue(c *coordinator.Coordinator) *KeyValue { return &KeyValue{c: c} }

// Put appends a put operation for key.
func (kv *KeyValue) Put(ctx context.Context, key string, value any) (*entry.Entry, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	payload, err := encodeOp(op{Kind: kindPut, Key: key, Value: b})
	if err != nil {
		return nil, err
	}
	return kv.c.Add(ctx, payload)
}

// Delete appends a delete operation for key.
func (kv *KeyValue) Delete(ctx context.Context, key string) (*entry.Entry, error) {
	payload, err := encodeOp(op{Kind: kindDel, Key: key})
	if err != nil {
		return nil, err
	}
	return kv.c.Add(ctx, payload)
}

// materialize folds the full oplog into a map, resolving each key's
// surviving write via winner so the result doesn't depend on the fold
// happening to visit entries in order.
func materialize(c *coordinator.Coordinator) (map[string]json.RawMessage, error) {
	last := make(map[string]*entry.Entry)
	vals := make(map[string]json.RawMessage)
	deleted := make(map[string]*entry.Entry)

	for _, e := range allOrdered(c) {
		o, err := decodeOp(e.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "store: entry %s", e.Hash)
		}
		switch o.Kind {
		case kindPut:
			if winner(last[o.Key], e) == e {
				last[o.Key] = e
				vals[o.Key] = o.Value
			}
		case kindDel:
			if winner(last[o.Key], e) == e {
				last[o.Key] = e
				deleted[o.Key] = e
			}
		}
	}

	out := make(map[string]json.RawMessage, len(vals))
	for k, v := range vals {
		if deleted[k] == last[k] {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Get returns the current materialized value for key, if present.
func (kv *KeyValue) Get(key string) (json.RawMessage, bool, error) {
	m, err := materialize(kv.c)
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// All returns the fully materialized key-value map.
func (kv *KeyValue) All() (map[string]json.RawMessage, error) {
	return materialize(kv.c)
}
