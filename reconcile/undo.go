// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"github.com/bureau-foundation/scenesync/scene"
)

// onUndoRedo reconciles an actor touched by undo or redo. Undo can
// delete, restore or change an actor regardless of locks, so the
// actor's state is checked against its object and either sent or
// reverted.
func (e *Engine) onUndoRedo(actor scene.EntityID) {
	ent := e.world.Entity(actor)
	if ent == nil || ent.Kind() != scene.KindActor {
		return
	}
	if ent.IsDestroyed() {
		e.onActorDeleted(actor)
		return
	}
	object := e.registry.Lookup(actor)
	switch {
	case object == nil:
		e.onUndoDelete(actor)
		return
	case object.IsDeletePending():
		// Restored before the server acknowledged the delete. The
		// upload waits for the acknowledgement.
		e.indicator.Remove(actor)
		e.EnqueueUpload(actor)
		return
	case !object.IsSyncing():
		e.registry.Unbind(object)
		e.onUndoDelete(actor)
		return
	}

	e.syncLabelAndName(actor, object)
	e.syncFolder(actor, object)
	if object.IsLocked() {
		e.world.SetLockLocation(actor, true)
		e.properties.ApplyProperties(object, actor)
	} else {
		e.world.SetLockLocation(actor, false)
		if err := e.properties.SendPropertyChanges(object, actor); err != nil {
			e.logger.Warn("sending undone properties", "object_id", object.ID(), "error", err)
		}
	}
	e.components.syncTransforms(actor)
	e.parents = appendUnique(e.parents, actor)
}

// onUndoDelete handles an actor restored by undo that has no object.
// An actor another user deleted, or one that was recreated under the
// same name while it was gone, is destroyed again. Otherwise it is
// uploaded as new.
func (e *Engine) onUndoDelete(actor scene.EntityID) {
	ent := e.world.Entity(actor)
	if !e.IsSyncable(actor) {
		return
	}
	if e.remoteDeleted[actor] || e.nameReplaced(ent) {
		e.logger.Info("undo restored an actor deleted remotely, destroying it", "entity", ent.String())
		if baseName(ent.Name()) == ent.Name() {
			e.moveOutOfTheWay(actor)
		}
		e.destroyActor(actor)
		return
	}
	e.indicator.Remove(actor)
	e.EnqueueUpload(actor)
}

// nameReplaced reports whether another live actor in the level now uses
// the name ent had before it was deleted.
func (e *Engine) nameReplaced(ent *scene.Entity) bool {
	base := baseName(ent.Name())
	for _, other := range e.world.Actors(ent.Level()) {
		if other == ent.ID() {
			continue
		}
		if name := e.world.Entity(other).Name(); name == base || name == ent.Name() {
			return true
		}
	}
	return false
}
