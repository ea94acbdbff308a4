// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"slices"

	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// onActorDeleted handles a local delete. A locked actor cannot be
// deleted on the server, so it is queued for recreation instead.
func (e *Engine) onActorDeleted(actor scene.EntityID) {
	ent := e.world.Entity(actor)
	if ent == nil {
		return
	}
	object := e.registry.Lookup(actor)
	if object != nil && object.IsSyncing() && !object.IsDeletePending() && !slices.Contains(e.recreate, object) {
		e.numSynced--
		if object.IsLocked() {
			e.recreateActor(object)
		} else {
			e.cleanUpChildren(object, e.registry.Lookup(ent.Level()), false)
			if err := e.session.Delete(object); err != nil {
				e.logger.Warn("deleting object", "entity", ent.String(), "object_id", object.ID(), "error", err)
			}
		}
	}
	if e.world.IsA(ent.Class(), scene.ClassBrush) {
		e.indicator.RemoveModelMesh(actor)
	}
	if missing := ent.MissingClass(); missing != "" {
		e.standIns.Remove(missing, actor)
	}
	e.world.Pin(actor, false)
	e.uploads = slices.DeleteFunc(e.uploads, func(id scene.EntityID) bool { return id == actor })
	e.moved = slices.DeleteFunc(e.moved, func(id scene.EntityID) bool { return id == actor })
	e.dropSelected(actor)
}

// recreateActor unbinds a locally deleted actor whose object is locked
// by another user. The object keeps its place on the server and a new
// entity is created for it on the next tick.
func (e *Engine) recreateActor(object *replication.Object) {
	e.logger.Info("actor is locked, recreating it",
		"object_id", object.ID(), "name", object.Get(replication.PropName).Str)
	e.registry.Unbind(object)
	if err := object.ReleaseLock(); err != nil {
		e.logger.Warn("releasing lock", "object_id", object.ID(), "error", err)
	}
	e.cleanUpChildren(object, nil, false)
	e.recreate = append(e.recreate, object)
}

// RecreateLockedEntities creates new entities for locked objects whose
// entities were deleted locally.
func (e *Engine) RecreateLockedEntities() {
	if len(e.recreate) == 0 {
		return
	}
	recreate := e.recreate
	e.recreate = nil
	for _, object := range recreate {
		if object.IsSyncing() && !e.registry.Contains(object) {
			e.OnCreate(object, object.ChildIndex())
		}
	}
}

// OnDelete destroys the entity of a remotely deleted actor object along
// with the actors attached under it.
func (e *Engine) OnDelete(object *replication.Object) {
	e.cleanUpChildren(object, nil, true)
	actor := e.registry.Unbind(object)
	if actor == scene.NoEntity {
		return
	}
	e.numSynced--
	e.destroyActor(actor)
}

// cleanUpChildren unbinds the descendants of a deleted object. With a
// level object, child actor objects are moved under it so they survive
// the delete on the server. With recurse, child actors are destroyed.
func (e *Engine) cleanUpChildren(object, levelObject *replication.Object, recurse bool) {
	children := object.Children()
	for i := len(children) - 1; i >= 0; i-- {
		child := children[i]
		switch child.Type() {
		case replication.TypeActor:
			childActor := e.registry.Resolve(child)
			destroyed := childActor != scene.NoEntity && !e.world.IsValid(childActor)
			if !recurse && !destroyed {
				if levelObject != nil {
					e.moveToLevel(child, childActor, levelObject)
				}
				continue
			}
			if recurse && e.world.IsValid(childActor) {
				e.destroyActor(childActor)
			}
			if levelObject == nil {
				if e.registry.Unbind(child) != scene.NoEntity {
					e.numSynced--
				}
			} else if child.IsSyncing() {
				e.numSynced--
			}
			e.cleanUpChildren(child, levelObject, recurse)
		case replication.TypeUObject:
			// Sub-objects keep their binding so a recreated owner reuses
			// them.
			if levelObject == nil {
				e.registry.Unbind(child)
				e.cleanUpChildren(child, levelObject, recurse)
			}
		default:
			e.registry.Unbind(child)
			e.cleanUpChildren(child, levelObject, recurse)
		}
	}
}

func (e *Engine) moveToLevel(child *replication.Object, actor scene.EntityID, levelObject *replication.Object) {
	if err := levelObject.AddChild(child, -1); err != nil {
		e.logger.Warn("moving child actor to level", "object_id", child.ID(), "error", err)
		return
	}
	if actor != scene.NoEntity {
		e.components.syncTransform(e.world.RootComponent(actor), false)
	}
}

// destroyActor destroys an entity because of a remote change.
func (e *Engine) destroyActor(actor scene.EntityID) {
	ent := e.world.Entity(actor)
	if ent == nil {
		return
	}
	if e.world.IsA(ent.Class(), scene.ClassBrush) {
		e.indicator.RemoveModelMesh(actor)
		e.scheduleRebuild(ent.Level())
	}
	e.remoteDeleted[actor] = true
	e.world.Quietly(func() { e.world.Destroy(actor) })
	e.collectGarbage = true
}

func (e *Engine) dropSelected(actor scene.EntityID) {
	if _, ok := e.selected[actor]; !ok {
		return
	}
	delete(e.selected, actor)
	e.selectedOrder = slices.DeleteFunc(e.selectedOrder, func(id scene.EntityID) bool { return id == actor })
	if len(e.selected) == 0 {
		e.moving = false
		e.movingBrush = false
	}
}
