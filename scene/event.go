// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import "fmt"

// EventKind identifies a world change.
type EventKind uint8

const (
	EventActorAdded EventKind = iota + 1
	// EventActorDeleted fires before the actor is marked destroyed.
	EventActorDeleted
	EventAttached
	EventDetached
	EventFolderChanged
	EventLabelChanged
	EventActorMoved
	EventMoveStarted
	EventMoveEnded
	EventGeometryModified
	EventLevelDirtied
	EventUndoRedo
	EventPropertyChanged
	EventLevelAdded
	// EventLevelRemoved fires while the level and its actors still exist.
	EventLevelRemoved
)

var eventNames = map[EventKind]string{
	EventActorAdded:       "actor-added",
	EventActorDeleted:     "actor-deleted",
	EventAttached:         "attached",
	EventDetached:         "detached",
	EventFolderChanged:    "folder-changed",
	EventLabelChanged:     "label-changed",
	EventActorMoved:       "actor-moved",
	EventMoveStarted:      "move-started",
	EventMoveEnded:        "move-ended",
	EventGeometryModified: "geometry-modified",
	EventLevelDirtied:     "level-dirtied",
	EventUndoRedo:         "undo-redo",
	EventPropertyChanged:  "property-changed",
	EventLevelAdded:       "level-added",
	EventLevelRemoved:     "level-removed",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Transaction tags the editor operation that caused an event.
type Transaction uint8

const (
	// TransactionNone marks changes made outside any undo transaction.
	TransactionNone Transaction = iota
	// TransactionSetBrushProperties is a brush property edit (poly flags,
	// brush type).
	TransactionSetBrushProperties
	// TransactionCreateActors covers actor creation and, in the host,
	// surface material assignment.
	TransactionCreateActors
	TransactionOther
)

func (t Transaction) String() string {
	switch t {
	case TransactionNone:
		return "none"
	case TransactionSetBrushProperties:
		return "set-brush-properties"
	case TransactionCreateActors:
		return "create-actors"
	case TransactionOther:
		return "other"
	default:
		return fmt.Sprintf("transaction(%d)", uint8(t))
	}
}

// Event is one world change.
type Event struct {
	Kind   EventKind
	Entity EntityID

	// Parent is the new parent for EventAttached and the old parent
	// for EventDetached.
	Parent EntityID

	// OldFolder is set for EventFolderChanged.
	OldFolder string

	// Key is set for EventPropertyChanged.
	Key string

	// Transaction is set for EventGeometryModified and
	// EventLevelDirtied.
	Transaction Transaction
}

// Subscribe registers fn for every event and returns a function that
// removes it.
func (w *World) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := w.nextSubscriber
	w.nextSubscriber++
	w.subscribers[id] = fn
	w.subscriberOrder = append(w.subscriberOrder, id)
	return func() { delete(w.subscribers, id) }
}

// Quietly runs fn without emitting events. Calls nest.
func (w *World) Quietly(fn func()) {
	w.quiet++
	defer func() { w.quiet-- }()
	fn()
}

func (w *World) emit(ev Event) {
	if w.quiet > 0 {
		return
	}
	for _, id := range w.subscriberOrder {
		if fn, ok := w.subscribers[id]; ok {
			fn(ev)
		}
	}
}
