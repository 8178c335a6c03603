// Package store holds the daemon's document collections, persisted to SQLite
// and mirrored in memory for reads and subscriptions.
package store

import "encoding/json"

// ChangeType defines how a Change modifies a collection.
type ChangeType string

const (
	ChangeReplace ChangeType = "replace"
	ChangePut     ChangeType = "put"
	ChangeDelete  ChangeType = "delete"
)

// Change is a mutation emitted by a collector.
type Change struct {
	Type       ChangeType
	Collection string
	ID         string            // put, delete
	Document   json.RawMessage   // put
	Documents  []json.RawMessage // replace
	Source     string            // Which collector sent this change (e.g. "seed")
}

// Update is the full state of one collection after a change. It is the
// payload streamed to subscribers.
type Update struct {
	Collection string            `json:"collection"`
	Seq        uint64            `json:"seq"`
	Documents  []json.RawMessage `json:"documents"`
	Source     string            `json:"source,omitempty"`
}

// CollectionInfo summarises a collection for listings.
type CollectionInfo struct {
	Name  string `json:"name"`
	Seq   uint64 `json:"seq"`
	Count int    `json:"count"`
}
