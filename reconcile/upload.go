// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// FlushUploads creates objects for the queued local actors. Consecutive
// actors with the same parent object go up in one batch; a change of
// parent starts a new batch. Actors that cannot go up yet (a pending
// delete of their previous object, or a parent that is not on the
// server) stay queued for the next tick, as do the actors of a batch
// the server refused.
func (e *Engine) FlushUploads() {
	if len(e.uploads) == 0 {
		return
	}
	uploads := e.uploads
	e.uploads = nil

	var (
		retry   []scene.EntityID
		created []*replication.Object
		batch   []*replication.Object
		parent  *replication.Object
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := e.createBatch(batch, parent, -1); err != nil {
			// The parent may have been locked or deleted since the last
			// Receive. The next tick sees the change and picks another
			// parent.
			e.logger.Warn("creating objects, retrying next tick",
				"parent", parent.String(), "count", len(batch), "error", err)
			for _, object := range batch {
				retry = append(retry, e.registry.Resolve(object))
				for _, descendant := range object.SelfAndDescendants() {
					e.registry.Unbind(descendant)
				}
			}
		} else {
			created = append(created, batch...)
		}
		batch = nil
	}

	for _, actor := range uploads {
		ent := e.world.Entity(actor)
		if !e.isSyncable(ent, false) {
			e.world.Pin(actor, false)
			continue
		}
		if object := e.registry.Lookup(actor); object != nil {
			if object.IsDeletePending() {
				retry = append(retry, actor)
				continue
			}
			if object.IsSyncing() {
				e.world.Pin(actor, false)
				continue
			}
		}
		target := e.uploadParent(ent)
		if target == nil {
			retry = append(retry, actor)
			continue
		}
		if target != parent {
			flush()
			parent = target
		}
		object := e.createObject(ent)
		if object == nil {
			e.world.Pin(actor, false)
			continue
		}
		batch = append(batch, object)
	}
	flush()

	for _, actor := range retry {
		e.uploads = appendUnique(e.uploads, actor)
	}
	for _, object := range created {
		actor := e.registry.Resolve(object)
		e.world.Pin(actor, false)
		e.numSynced++
		for _, listener := range e.uploadListeners {
			if e.world.IsA(e.world.Entity(actor).Class(), listener.class) {
				listener.fn(object, actor)
			}
		}
		e.invokeLockStateChange(object, actor)
		e.findAndAttachChildren(actor)
	}
	if len(created) > 0 {
		e.logger.Debug("uploaded actors", "count", len(created), "retrying", len(retry))
	}
}

// uploadParent returns the object a new actor object goes under: the
// root component object of its attach parent, or its level object.
// Returns nil when the parent is not on the server yet.
func (e *Engine) uploadParent(ent *scene.Entity) *replication.Object {
	levelObject := e.registry.Lookup(ent.Level())
	if levelObject == nil || !levelObject.IsSyncing() {
		return nil
	}
	if ent.Parent() == scene.NoEntity || !e.IsSyncable(ent.Parent()) {
		return levelObject
	}
	parent := e.registry.Lookup(e.world.RootComponent(ent.Parent()))
	if parent == nil || !parent.IsSyncing() {
		return nil
	}
	if parent.IsFullyLocked() {
		e.logger.Warn("attach parent is locked, uploading under the level",
			"entity", ent.String(), "parent_id", parent.ID())
		e.world.Quietly(func() { e.world.Detach(ent.ID()) })
		return levelObject
	}
	return parent
}

// createObject builds the local object tree for an actor and binds it.
// The tree is not on the server until its batch is created.
func (e *Engine) createObject(ent *scene.Entity) *replication.Object {
	actor := ent.ID()
	if stale := e.registry.Lookup(actor); stale != nil {
		for _, descendant := range stale.SelfAndDescendants() {
			e.registry.Unbind(descendant)
		}
	}

	class := ent.Class()
	if missing := ent.MissingClass(); missing != "" {
		class = missing
		e.standIns.Add(missing, actor)
	}
	properties := replication.Properties{
		replication.PropName:   replication.String(ent.Name()),
		replication.PropClass:  replication.String(class),
		replication.PropLabel:  replication.String(ent.Label()),
		replication.PropFolder: replication.String(ent.Folder()),
	}
	e.properties.CreateProperties(actor, properties)
	object := replication.NewObject(replication.TypeActor, properties)
	if err := e.registry.Bind(actor, object); err != nil {
		e.logger.Warn("binding new object", "entity", ent.String(), "error", err)
		return nil
	}
	e.components.createObjects(ent, object)
	for _, init := range e.objectInitializers {
		if e.world.IsA(ent.Class(), init.class) {
			init.fn(object, actor)
		}
	}
	return object
}

// findAndAttachChildren queues a parent sync for attached actors that
// are already on the server under another parent.
func (e *Engine) findAndAttachChildren(actor scene.EntityID) {
	ent := e.world.Entity(actor)
	if ent == nil {
		return
	}
	root := e.registry.Lookup(e.world.RootComponent(actor))
	if root == nil || !root.IsSyncing() {
		return
	}
	for _, child := range ent.Attached() {
		object := e.registry.Lookup(child)
		if object != nil && object.IsSyncing() && object.Parent() != root {
			e.parents = appendUnique(e.parents, child)
		}
	}
}
