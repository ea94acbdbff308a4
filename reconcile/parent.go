// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// OnParentChange re-attaches an actor after a remote reparent.
func (e *Engine) OnParentChange(object *replication.Object, _ int) {
	actor := e.registry.Resolve(object)
	if actor == scene.NoEntity {
		return
	}
	if object.Parent() == nil {
		e.disconnect(noParentError(object))
		return
	}
	e.applyServerParent(object, actor)
}

func (e *Engine) applyServerParent(object *replication.Object, actor scene.EntityID) {
	if e.detachIfParentIsLevel(object, actor) {
		return
	}
	component := e.registry.Resolve(object.Parent())
	if component == scene.NoEntity {
		return
	}
	parentActor := e.world.Entity(component).Actor()
	e.world.Quietly(func() {
		if err := e.world.Attach(actor, parentActor); err != nil {
			e.logger.Warn("attaching actor", "object_id", object.ID(), "error", err)
		}
	})
}

// SyncParents sends the attach parents changed locally since the last
// tick. A change to a locked actor, or under a fully locked parent, is
// reverted to the server's parent.
func (e *Engine) SyncParents() {
	if len(e.parents) == 0 {
		return
	}
	parents := e.parents
	e.parents = nil
	for _, actor := range parents {
		object := e.registry.Lookup(actor)
		if object == nil || !object.IsSyncing() || !e.world.IsValid(actor) {
			continue
		}
		e.syncParent(actor, object)
	}
}

func (e *Engine) syncParent(actor scene.EntityID, object *replication.Object) {
	ent := e.world.Entity(actor)
	var parent *replication.Object
	if ent.Parent() != scene.NoEntity {
		parent = e.registry.Lookup(e.world.RootComponent(ent.Parent()))
	}
	if parent == nil || !parent.IsSyncing() {
		parent = e.registry.Lookup(ent.Level())
	}
	if parent == nil || parent == object.Parent() {
		return
	}
	root := e.world.RootComponent(actor)
	if object.IsLocked() || parent.IsFullyLocked() {
		if object.Parent() == nil {
			e.disconnect(noParentError(object))
			return
		}
		e.logger.Debug("reverting attach of locked actor", "entity", ent.String(), "object_id", object.ID())
		e.applyServerParent(object, actor)
		e.components.syncTransform(root, true)
		return
	}
	if err := parent.AddChild(object, -1); err != nil {
		e.logger.Warn("reparenting object", "entity", ent.String(), "object_id", object.ID(), "error", err)
		e.applyServerParent(object, actor)
		e.components.syncTransform(root, true)
		return
	}
	e.components.syncTransform(root, false)
}
