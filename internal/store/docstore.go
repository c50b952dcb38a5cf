package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/entry"
)

// DocStore materializes the oplog as a map keyed by a configurable field
// extracted from each document, using the same fold-to-map approach as
// KeyValue.
type DocStore struct {
	c         *coordinator.Coordinator
	indexedBy string
}

// NewDocStore wraps an already-open Coordinator as a DocStore view, keying
// documents by the value of their indexedBy field.
func NewDocStore(c *coordinator.Coordinator, indexedBy string) *DocStore {
	if indexedBy == "" {
		indexedBy = "_id"
	}
	return &DocStore{c: c, indexedBy: indexedBy}
}

// Put appends doc, keyed by the value of its indexedBy field.
func (d *DocStore) Put(ctx context.Context, doc map[string]any) (*entry.Entry, error) {
	key, ok := doc[d.indexedBy].(string)
	if !ok || key == "" {
		return nil, errors.Errorf("docstore: document missing string field %q", d.indexedBy)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	payload, err := encodeOp(op{Kind: kindPut, Key: key, Value: b})
	if err != nil {
		return nil, err
	}
	return d.c.Add(ctx, payload)
}

// Delete appends a delete operation for key.
func (d *DocStore) Delete(ctx context.Context, key string) (*entry.Entry, error) {
	payload, err := encodeOp(op{Kind: kindDel, Key: key})
	if err != nil {
		return nil, err
	}
	return d.c.Add(ctx, payload)
}

// Get returns the current materialized document for key, if present.
func (d *DocStore) Get(key string) (map[string]any, bool, error) {
	m, err := d.All()
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// All returns every surviving document, keyed by their indexedBy field.
func (d *DocStore) All() (map[string]map[string]any, error) {
	raw, err := materialize(d.c)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(raw))
	for k, v := range raw {
		var doc map[string]any
		if err := json.Unmarshal(v, &doc); err != nil {
			return nil, errors.Wrapf(err, "docstore: decode %q", k)
		}
		out[k] = doc
	}
	return out, nil
}
