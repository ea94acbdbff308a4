// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"slices"

	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// levelSync binds levels to root level objects.
type levelSync struct {
	engine *Engine
}

var _ replication.Handler = (*levelSync)(nil)

// upload creates a root object for a local level and queues its
// actors.
func (l *levelSync) upload(level scene.EntityID) {
	e := l.engine
	ent := e.world.Entity(level)
	if ent == nil || ent.Kind() != scene.KindLevel {
		return
	}
	if server := l.serverLevel(ent.Name()); server != nil {
		l.bind(level, server)
		return
	}
	object := replication.NewObject(replication.TypeLevel, replication.Properties{
		replication.PropName: replication.String(ent.Name()),
	})
	if err := e.createBatch([]*replication.Object{object}, nil, -1); err != nil {
		e.logger.Error("uploading level", "level", ent.Name(), "error", err)
		return
	}
	if err := e.registry.Bind(level, object); err != nil {
		e.logger.Warn("binding level", "level", ent.Name(), "error", err)
		return
	}
	for _, actor := range e.world.Actors(level) {
		if e.IsSyncable(actor) {
			e.EnqueueUpload(actor)
		}
	}
	e.logger.Info("uploaded level", "level", ent.Name(), "object_id", object.ID())
}

// serverLevel returns the unbound root level object with the given
// name, or nil.
func (l *levelSync) serverLevel(name string) *replication.Object {
	for _, root := range l.engine.session.Roots() {
		if root.Type() == replication.TypeLevel && root.Get(replication.PropName).Str == name &&
			!l.engine.registry.Contains(root) {
			return root
		}
	}
	return nil
}

func (l *levelSync) onLevelAdded(level scene.EntityID) {
	if l.engine.registry.Lookup(level) == nil {
		l.upload(level)
	}
}

// onLevelRemoved unbinds a level removed locally and deletes its object.
func (l *levelSync) onLevelRemoved(level scene.EntityID) {
	e := l.engine
	object := e.registry.Lookup(level)
	if object == nil {
		return
	}
	l.unbindLevel(level, object)
	if object.IsSyncing() {
		if err := e.session.Delete(object); err != nil {
			e.logger.Warn("deleting level", "object_id", object.ID(), "error", err)
		}
	}
}

func (l *levelSync) unbindLevel(level scene.EntityID, object *replication.Object) {
	e := l.engine
	for _, descendant := range object.SelfAndDescendants() {
		actor := e.registry.Unbind(descendant)
		if actor == scene.NoEntity || descendant.Type() != replication.TypeActor {
			continue
		}
		e.numSynced--
		e.dropSelected(actor)
	}
	inLevel := func(id scene.EntityID) bool {
		ent := e.world.Entity(id)
		return ent == nil || ent.Level() == level
	}
	e.uploads = slices.DeleteFunc(e.uploads, inLevel)
	e.moved = slices.DeleteFunc(e.moved, inLevel)
	e.parents = slices.DeleteFunc(e.parents, inLevel)
	e.revertFolders = slices.DeleteFunc(e.revertFolders, inLevel)
}

// bind attaches a local level to its server object and creates the
// level's remote actors. Local actors the server does not have are
// destroyed.
func (l *levelSync) bind(level scene.EntityID, object *replication.Object) {
	e := l.engine
	if err := e.registry.Bind(level, object); err != nil {
		e.logger.Warn("binding level", "object_id", object.ID(), "error", err)
		return
	}
	for _, child := range object.Children() {
		e.dispatchCreate(child)
	}
	for _, actor := range e.world.Actors(level) {
		if e.IsSyncable(actor) && e.registry.Lookup(actor) == nil && !e.isDeferredName(level, actor) {
			e.destroyActor(actor)
		}
	}
}

// isDeferredName reports whether a remote create deferred by the budget
// will reuse actor.
func (e *Engine) isDeferredName(level scene.EntityID, actor scene.EntityID) bool {
	name := e.world.Entity(actor).Name()
	for _, object := range e.deferred {
		if object.Get(replication.PropName).Str == name && e.registry.Resolve(object.Ancestor(replication.TypeLevel)) == level {
			return true
		}
	}
	return false
}

// OnCreate binds a remote level to the local level with its name,
// loading it if needed.
func (l *levelSync) OnCreate(object *replication.Object, _ int) {
	e := l.engine
	name := object.Get(replication.PropName).Str
	level := e.world.LevelByName(name)
	if level != scene.NoEntity {
		if bound := e.registry.Lookup(level); bound != nil {
			e.logger.Warn("level already bound, ignoring remote level",
				"level", name, "object_id", object.ID(), "bound_id", bound.ID())
			return
		}
	} else {
		e.world.Quietly(func() { level = e.world.AddLevel(name) })
	}
	l.bind(level, object)
}

// OnDelete unloads a level deleted remotely.
func (l *levelSync) OnDelete(object *replication.Object) {
	e := l.engine
	level := e.registry.Resolve(object)
	if level == scene.NoEntity {
		return
	}
	l.unbindLevel(level, object)
	e.world.Quietly(func() { e.world.RemoveLevel(level) })
}

func (l *levelSync) OnLock(*replication.Object) {}
func (l *levelSync) OnUnlock(*replication.Object) {}
func (l *levelSync) OnLockOwnerChange(*replication.Object) {}
func (l *levelSync) OnParentChange(*replication.Object, int) {}
func (l *levelSync) OnPropertyChange(*replication.Object, string) {}
