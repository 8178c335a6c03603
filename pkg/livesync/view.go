package livesync

import (
	"github.com/grovetools/causes/pkg/collection"
	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/query"
)

// View is what a presentation layer renders: the controller state, the
// active query and the entities it selects.
type View[T models.Record] struct {
	Collection string       `json:"collection"`
	State      Phase        `json:"state"`
	Reason     string       `json:"reason,omitempty"`
	Params     query.Params `json:"params"`
	Seq        uint64       `json:"seq,omitempty"`
	Total      int          `json:"total"`
	Entities   []T          `json:"entities"`

	err error
}

// Err returns the failure behind an error view.
func (v View[T]) Err() error {
	return v.err
}

// Project derives the view from the controller state, the applied snapshot
// and the query. It is pure; invalid params yield an empty selection.
func Project[T models.Record](state State, snap collection.Snapshot[T], params query.Params) View[T] {
	entities, err := query.Filter(snap.Items, params)
	if err != nil {
		entities = []T{}
	}
	return View[T]{
		Collection: snap.Collection,
		State:      state.Phase,
		Reason:     state.Reason(),
		Params:     params,
		Seq:        snap.Seq,
		Total:      snap.Len(),
		Entities:   entities,
		err:        state.Err,
	}
}
