package store

import (
	"context"
	"encoding/json"

	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/entry"
)

// EventLog is an append-only sequence view: every add becomes one entry,
// and iteration yields them in the oplog's total order. It never
// interprets its payloads.
type EventLog struct {
	c *coordinator.Coordinator
}

// NewEventLog wraps an already-open Coordinator as an EventLog view.
func NewEventLog(c *coordinator.Coordinator) *EventLog { return &EventLog{c: c} }

// Add appends value, JSON-encoded, as a new event.
func (l *EventLog) Add(ctx context.Context, value any) (*entry.Entry, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return l.c.Add(ctx, b)
}

// All returns every event in total order.
func (l *EventLog) All() []*entry.Entry {
	return allOrdered(l.c)
}
