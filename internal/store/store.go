// Package store implements the five typed "view" kinds named in spec.md
// §1: EventLog, Feed, KeyValue, Counter, and DocStore. None of these holds
// its own authoritative state — each is a thin materialization that folds
// a Coordinator's total-ordered oplog into an application-shaped read
// model, and can always be rebuilt from scratch by replaying
// Coordinator.Iterator. The factory that dispatches between these five
// kinds by a manifest's declared type is out of scope; callers construct
// the view kind they already know they want.
package store

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/entry"
)

// op is the common envelope every view payload is encoded as. Kind lets
// Feed's tombstone-style Remove and KeyValue/DocStore's Delete share one
// wire format with ordinary writes, without EventLog or Counter needing to
// know about deletion at all.
type op struct {
	Kind  string          `json:"kind"` // "put" or "del"
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

const (
	kindPut = "put"
	kindDel = "del"
)

func encodeOp(o op) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "store: encode op")
	}
	return b, nil
}

func decodeOp(payload []byte) (op, error) {
	var o op
	if err := json.Unmarshal(payload, &o); err != nil {
		return op{}, errors.Wrap(err, "store: decode op")
	}
	return o, nil
}

func allOrdered(c *coordinator.Coordinator) []*entry.Entry {
	return c.Iterator(coordinator.IteratorOptions{Limit: -1})
}
