// Package feed multiplexes per-table change streams to in-process
// subscribers. Delivery is at-least-once and unordered across tables; a
// dropped broker connection never gap-fills, the multiplexer reconnects and
// tells every subscriber to resync from the store instead.
package feed

import (
	"context"
	"encoding/json"
)

const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Event is one row change as published by the outbox dispatcher. Row is the
// full row after the change, or null for a DELETE.
type Event struct {
	Seq   int64           `json:"seq"`
	Table string          `json:"table"`
	Op    string          `json:"op"`
	RowID int64           `json:"row_id"`
	Row   json.RawMessage `json:"row"`
}

// Filter narrows a table subscription to the rows a subscriber cares about.
// A nil filter passes everything.
type Filter func(Event) bool

// Handler receives a table's events. OnResync fires after a reconnect: any
// events produced while the feed was down are gone, so the subscriber must
// refetch its state from the store before trusting events again.
type Handler interface {
	OnEvent(ctx context.Context, ev Event)
	OnResync(ctx context.Context)
}
