// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"github.com/bureau-foundation/scenesync/lib/codec"
)

// Receive applies every event queued since the last call and dispatches
// them to the registered handlers. It never blocks. Returns the number of
// events applied. A handler that calls Leave stops the drain.
func (s *Session) Receive() int {
	if s.disconnected {
		return 0
	}
	applied := 0
	for _, data := range s.transport.Drain() {
		if s.disconnected {
			break
		}
		var ev event
		if err := codec.Unmarshal(data, &ev); err != nil {
			s.logger.Error("dropping undecodable event", "error", err)
			continue
		}
		s.apply(&ev)
		applied++
	}
	return applied
}

func (s *Session) apply(ev *event) {
	switch ev.Kind {
	case eventUserJoined:
		if ev.User != nil {
			s.users[ev.User.ID] = *ev.User
		}
	case eventUserLeft:
		if ev.User != nil {
			delete(s.users, ev.User.ID)
		}
	case eventCreate:
		s.applyCreate(ev)
	case eventDelete:
		s.applyDelete(ev.ID, true)
	case eventDeleteAck:
		s.applyDelete(ev.ID, false)
	case eventLock:
		s.applyLock(ev)
	case eventParent:
		s.applyParent(ev)
	case eventProperty:
		s.applyProperty(ev)
	default:
		s.logger.Warn("ignoring unknown event", "kind", ev.Kind)
	}
}

func (s *Session) applyCreate(ev *event) {
	if ev.Object == nil || s.objects[ev.Object.ID] != nil {
		return
	}
	var parent *Object
	if ev.Parent != NoObject {
		parent = s.objects[ev.Parent]
		if parent == nil {
			s.logger.Warn("create event for unknown parent",
				"object_id", ev.Object.ID, "parent_id", ev.Parent)
			return
		}
	}

	locks := s.snapshotLocks(nil, parent)
	object := s.materialize(ev.Object)
	if parent == nil {
		s.roots = append(s.roots, object)
	} else {
		attach(object, parent, ev.ChildIndex)
	}

	s.dispatch(object, func(h Handler) { h.OnCreate(object, object.ChildIndex()) })
	s.dispatchLockChanges(locks)
}

func (s *Session) materialize(snapshot *objectSnapshot) *Object {
	object := &Object{
		session:    s,
		id:         snapshot.ID,
		objectType: snapshot.Type,
		properties: snapshot.Properties.Clone(),
		holder:     snapshot.Holder,
		syncing:    true,
	}
	s.objects[object.id] = object
	for i := range snapshot.Children {
		child := s.materialize(&snapshot.Children[i])
		child.parent = object
		object.children = append(object.children, child)
	}
	return object
}

func (s *Session) applyDelete(id ObjectID, remote bool) {
	object := s.objects[id]
	if object == nil {
		return
	}
	locks := s.snapshotLocks(nil, object.parent)
	if remote {
		s.dispatch(object, func(h Handler) { h.OnDelete(object) })
	}
	s.remove(object)
	if !remote {
		for _, listener := range s.deleteAckListeners {
			listener(object)
		}
	}
	s.dispatchLockChanges(locks)
}

// remove drops object's subtree from the replica. The objects stay
// valid values but are no longer syncing.
func (s *Session) remove(object *Object) {
	if object.parent == nil {
		s.removeRoot(object)
	} else {
		detach(object)
	}
	for _, descendant := range object.SelfAndDescendants() {
		if s.objects[descendant.id] == descendant {
			delete(s.objects, descendant.id)
		}
		descendant.syncing = false
		descendant.deletePending = false
		descendant.lockRequested = false
		descendant.holder = UserID{}
	}
}

func (s *Session) applyLock(ev *event) {
	object := s.objects[ev.ID]
	if object == nil {
		return
	}
	locks := s.snapshotLocks(object, object.parent)
	object.holder = ev.Holder
	if ev.Holder == s.user.ID {
		object.lockRequested = false
	}
	s.dispatchLockChanges(locks)
}

func (s *Session) applyParent(ev *event) {
	object := s.objects[ev.ID]
	if object == nil {
		return
	}
	var parent *Object
	if ev.Parent != NoObject {
		parent = s.objects[ev.Parent]
		if parent == nil {
			s.logger.Warn("parent change to unknown parent",
				"object_id", ev.ID, "parent_id", ev.Parent)
			return
		}
	}

	locks := s.snapshotLocks(object, object.parent, parent)
	if parent == nil {
		if object.parent != nil {
			detach(object)
			s.roots = append(s.roots, object)
		}
	} else {
		if object.parent == nil {
			s.removeRoot(object)
		}
		attach(object, parent, ev.ChildIndex)
	}

	s.dispatch(object, func(h Handler) { h.OnParentChange(object, object.ChildIndex()) })
	s.dispatchLockChanges(locks)
}

func (s *Session) applyProperty(ev *event) {
	object := s.objects[ev.ID]
	if object == nil {
		return
	}
	object.setLocal(ev.Key, ev.Value)
	s.dispatch(object, func(h Handler) { h.OnPropertyChange(object, ev.Key) })
}

func (s *Session) dispatch(object *Object, call func(Handler)) {
	if s.disconnected {
		return
	}
	if handler := s.handlers[object.objectType]; handler != nil {
		call(handler)
	}
}

type lockState struct {
	kind   LockKind
	holder UserID
}

func (o *Object) lockState() lockState {
	state := lockState{kind: o.LockKind()}
	if state.kind == FullyLocked {
		state.holder = o.effectiveHolder()
	}
	return state
}

type lockSnapshot struct {
	objects []*Object
	states  []lockState
}

// snapshotLocks records lock state for subtree (if non-nil) and for each
// chain object together with its ancestors.
func (s *Session) snapshotLocks(subtree *Object, chains ...*Object) lockSnapshot {
	var snapshot lockSnapshot
	seen := make(map[*Object]bool)
	add := func(object *Object) {
		if seen[object] {
			return
		}
		seen[object] = true
		snapshot.objects = append(snapshot.objects, object)
		snapshot.states = append(snapshot.states, object.lockState())
	}
	for _, start := range chains {
		var chain []*Object
		for current := start; current != nil; current = current.parent {
			chain = append(chain, current)
		}
		for i := len(chain) - 1; i >= 0; i-- {
			add(chain[i])
		}
	}
	if subtree != nil {
		for _, object := range subtree.SelfAndDescendants() {
			add(object)
		}
	}
	return snapshot
}

// dispatchLockChanges compares current lock state against a snapshot and
// notifies handlers of each object whose state changed.
func (s *Session) dispatchLockChanges(snapshot lockSnapshot) {
	for i, object := range snapshot.objects {
		if s.objects[object.id] != object {
			continue
		}
		before, after := snapshot.states[i], object.lockState()
		switch {
		case before == after:
		case before.kind == Unlocked:
			s.dispatch(object, func(h Handler) { h.OnLock(object) })
		case after.kind == Unlocked:
			s.dispatch(object, func(h Handler) { h.OnUnlock(object) })
		default:
			s.dispatch(object, func(h Handler) { h.OnLockOwnerChange(object) })
		}
	}
}
