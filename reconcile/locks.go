// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"slices"

	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// OnLock decorates an actor another user has started editing. An
// object that has no entity yet is created now.
func (e *Engine) OnLock(object *replication.Object) {
	actor := e.registry.Resolve(object)
	if actor == scene.NoEntity {
		if object.Parent() != nil && !slices.Contains(e.deferred, object) {
			e.OnCreate(object, object.ChildIndex())
		}
		return
	}
	e.indicator.Apply(actor, lockHolder(object))
	e.invokeLockStateChange(object, actor)
}

// OnUnlock removes the lock decoration.
func (e *Engine) OnUnlock(object *replication.Object) {
	actor := e.registry.Resolve(object)
	if actor == scene.NoEntity {
		return
	}
	e.indicator.Remove(actor)
	e.invokeLockStateChange(object, actor)
}

// OnLockOwnerChange recolours the decoration for the new holder.
func (e *Engine) OnLockOwnerChange(object *replication.Object) {
	actor := e.registry.Resolve(object)
	if actor == scene.NoEntity {
		return
	}
	e.indicator.OnHolderChanged(actor, lockHolder(object))
	e.invokeLockStateChange(object, actor)
}

// UpdateSelection requests locks for newly selected actors and releases
// the locks of deselected ones. While a drag is in progress the
// transforms of selected actors are sent every tick.
func (e *Engine) UpdateSelection() {
	selection := e.world.Selection()
	for _, actor := range slices.Clone(e.selectedOrder) {
		object := e.selected[actor]
		if e.moving {
			e.components.syncTransforms(actor)
			e.moved = slices.DeleteFunc(e.moved, func(id scene.EntityID) bool { return id == actor })
		}
		if object.IsSyncing() {
			e.components.syncComponents(actor, object)
		}
		if slices.Contains(selection, actor) {
			continue
		}
		for _, listener := range e.deselectListeners {
			listener(actor)
		}
		if err := object.ReleaseLock(); err != nil {
			e.logger.Warn("releasing lock", "object_id", object.ID(), "error", err)
		}
		e.dropSelected(actor)
	}

	for _, actor := range selection {
		if _, ok := e.selected[actor]; ok {
			continue
		}
		object := e.registry.Lookup(actor)
		if object == nil || !object.IsSyncing() {
			continue
		}
		if err := object.RequestLock(); err != nil {
			e.logger.Warn("requesting lock", "object_id", object.ID(), "error", err)
			continue
		}
		e.selected[actor] = object
		e.selectedOrder = append(e.selectedOrder, actor)
	}
}

// IsSelected reports whether the engine tracks actor as selected.
func (e *Engine) IsSelected(actor scene.EntityID) bool {
	_, ok := e.selected[actor]
	return ok
}
