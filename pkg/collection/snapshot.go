// Package collection holds the local projection of a remote collection: full
// snapshots, the cache they are applied to, and the source contract that
// delivers them.
package collection

import (
	"encoding/json"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/pkg/models"
)

// Snapshot is the complete state of a collection at one moment, in
// source-defined order. Seq is zero for sources that cannot reorder
// deliveries; otherwise it increases with every change.
type Snapshot[T models.Record] struct {
	Collection string
	Seq        uint64
	Items      []T
}

// NewSnapshot builds a snapshot, keeping the first occurrence of every id.
// It returns the number of dropped duplicates.
func NewSnapshot[T models.Record](collection string, seq uint64, items []T) (Snapshot[T], int) {
	seen := make(map[string]struct{}, len(items))
	kept := make([]T, 0, len(items))
	for _, item := range items {
		id := item.GetID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, item)
	}
	return Snapshot[T]{Collection: collection, Seq: seq, Items: kept}, len(items) - len(kept)
}

// Validate checks that ids are unique.
func (s Snapshot[T]) Validate() error {
	seen := make(map[string]struct{}, len(s.Items))
	for _, item := range s.Items {
		id := item.GetID()
		if _, dup := seen[id]; dup {
			return errors.DuplicateID(id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Len returns the number of entities in the snapshot.
func (s Snapshot[T]) Len() int {
	return len(s.Items)
}

// IDs returns entity ids in snapshot order.
func (s Snapshot[T]) IDs() []string {
	ids := make([]string, len(s.Items))
	for i, item := range s.Items {
		ids[i] = item.GetID()
	}
	return ids
}

// Decode turns raw documents into a snapshot. Documents the decoder rejects
// are skipped and returned alongside so the caller can log them; duplicates
// after the first occurrence are reported the same way.
func Decode[T models.Record](collection string, seq uint64, raws []json.RawMessage, decode models.Decoder[T]) (Snapshot[T], []error) {
	var dropped []error
	items := make([]T, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		item, err := decode(raw)
		if err != nil {
			dropped = append(dropped, err)
			continue
		}
		id := item.GetID()
		if _, dup := seen[id]; dup {
			dropped = append(dropped, errors.DuplicateID(id))
			continue
		}
		seen[id] = struct{}{}
		items = append(items, item)
	}
	return Snapshot[T]{Collection: collection, Seq: seq, Items: items}, dropped
}
