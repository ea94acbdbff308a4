// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// deletedMarker is appended to the name of a destroyed actor that is
// moved out of the way of a new actor with its name.
const deletedMarker = " (deleted"

// BeginFrame opens the frame's create budget.
func (e *Engine) BeginFrame() {
	e.budget.Reset()
}

// ProcessDeferredCreates retries remote creates the budget pushed out of
// earlier frames.
func (e *Engine) ProcessDeferredCreates() {
	if len(e.deferred) == 0 {
		return
	}
	deferred := e.deferred
	e.deferred = nil
	for _, object := range deferred {
		if !object.IsSyncing() || e.registry.Contains(object) {
			continue
		}
		e.dispatchCreate(object)
	}
}

// OnCreate creates the entity for a remote actor object.
func (e *Engine) OnCreate(object *replication.Object, _ int) {
	parent := object.Parent()
	if parent == nil {
		e.disconnect(noParentError(object))
		return
	}
	scope := object.Ancestor(replication.TypeLevel, replication.TypeBlueprint)
	if scope == nil {
		e.disconnect(&ProtocolError{
			Object: object.ID(),
			Name:   object.Get(replication.PropName).Str,
			Reason: "actor object is not inside a level or blueprint",
		})
		return
	}
	level := scene.NoEntity
	if scope.Type() == replication.TypeLevel {
		level = e.registry.Resolve(scope)
		if level == scene.NoEntity {
			return
		}
	}
	if actor := e.registry.Resolve(object); actor != scene.NoEntity && e.world.IsValid(actor) {
		e.applyServerParent(object, actor)
		return
	}
	parentActor := scene.NoEntity
	if parent.Type() == replication.TypeComponent {
		component := e.registry.Resolve(parent)
		if component == scene.NoEntity {
			return
		}
		parentActor = e.world.Entity(component).Actor()
	}

	actor := e.initializeActor(object, level)
	if actor == scene.NoEntity {
		return
	}
	if e.detachIfParentIsLevel(object, actor) {
		return
	}
	if parentActor != scene.NoEntity {
		e.world.Quietly(func() {
			if err := e.world.Attach(actor, parentActor); err != nil {
				e.logger.Warn("attaching remote actor", "object_id", object.ID(), "error", err)
			}
		})
	}
}

// initializeActor finds or spawns the entity for object, binds it and
// applies the object's state. Returns NoEntity if the create was
// deferred or failed.
func (e *Engine) initializeActor(object *replication.Object, level scene.EntityID) scene.EntityID {
	className := object.Get(replication.PropClass).Str
	name := object.Get(replication.PropName).Str
	class, known := e.world.ResolveClass(className)

	actor := scene.NoEntity
	if level == scene.NoEntity {
		if !known {
			e.logger.Warn("no class for blueprint object", "object_id", object.ID(), "class", className)
			return scene.NoEntity
		}
		id, err := e.world.DefaultFor(className)
		if err != nil {
			e.logger.Warn("loading class default", "class", className, "error", err)
			return scene.NoEntity
		}
		actor = id
	} else if existing := e.world.FindByName(level, name); existing != scene.NoEntity {
		ent := e.world.Entity(existing)
		switch {
		case ent.IsDestroyed():
			e.moveOutOfTheWay(existing)
		case e.registry.Lookup(existing) != nil:
		case ent.MissingClass() != className && (!known || ent.Class() != class.Name):
		default:
			actor = existing
		}
	}

	created := actor == scene.NoEntity
	if created {
		if e.budget.Exceeded() {
			e.deferred = append(e.deferred, object)
			return scene.NoEntity
		}
		spawnClass := className
		if !known {
			spawnClass = scene.ClassStandIn
		}
		var err error
		e.world.Quietly(func() {
			actor, err = e.world.Spawn(scene.SpawnParams{Level: level, Class: spawnClass})
		})
		if err != nil {
			e.logger.Error("spawning remote actor", "object_id", object.ID(), "class", className, "error", err)
			return scene.NoEntity
		}
		if !known {
			e.world.SetMissingClass(actor, className)
			e.standIns.Add(className, actor)
			e.logger.Info("spawned stand-in for missing class", "class", className, "name", name)
		}
	} else if ent := e.world.Entity(actor); ent.IsSelected() && ent.Kind() == scene.KindActor {
		e.selected[actor] = object
		e.selectedOrder = appendUnique(e.selectedOrder, actor)
		if err := object.RequestLock(); err != nil {
			e.logger.Warn("requesting lock", "object_id", object.ID(), "error", err)
		}
	}

	if err := e.registry.Bind(actor, object); err != nil {
		e.logger.Warn("binding remote actor", "object_id", object.ID(), "error", err)
		return scene.NoEntity
	}
	delete(e.remoteDeleted, actor)

	e.world.Quietly(func() {
		e.applyActorState(object, actor, created)
	})

	if object.IsLocked() {
		e.indicator.Apply(actor, lockHolder(object))
	}
	e.invokeLockStateChange(object, actor)
	e.world.Reselect(actor)
	e.numSynced++
	return actor
}

func (e *Engine) applyActorState(object *replication.Object, actor scene.EntityID, created bool) {
	e.world.SetFolder(actor, object.Get(replication.PropFolder).Str)
	e.properties.ApplyProperties(object, actor)
	if created {
		ent := e.world.Entity(actor)
		for _, init := range e.entityInitializers {
			if e.world.IsA(ent.Class(), init.class) {
				init.fn(object, actor)
			}
		}
	}
	e.applyLabelAndName(object, actor)
	e.properties.SetReferences(actor, e.session.GetReferences(object))

	for _, child := range object.Children() {
		if child.Type() == replication.TypeComponent {
			e.components.initialize(actor, child)
		} else {
			e.dispatchCreate(child)
		}
	}
	e.components.destroyUnsynced(actor)
}

func (e *Engine) applyLabelAndName(object *replication.Object, actor scene.EntityID) {
	ent := e.world.Entity(actor)
	if label := object.Get(replication.PropLabel).Str; label != "" && label != ent.Label() {
		e.world.SetLabel(actor, label)
	}
	name := object.Get(replication.PropName).Str
	if name == "" || name == ent.Name() {
		return
	}
	if !e.world.Rename(actor, name) {
		e.logger.Debug("name taken, keeping local name",
			"object_id", object.ID(), "name", name, "local", ent.Name())
	}
}

// moveOutOfTheWay renames a destroyed actor so its name can be reused.
func (e *Engine) moveOutOfTheWay(actor scene.EntityID) {
	ent := e.world.Entity(actor)
	base := baseName(ent.Name())
	for i := 1; ; i++ {
		name := base + deletedMarker + ")"
		if i > 1 {
			name = fmt.Sprintf("%s%s %d)", base, deletedMarker, i)
		}
		if e.world.Rename(actor, name) {
			return
		}
	}
}

// baseName strips the marker added by moveOutOfTheWay.
func baseName(name string) string {
	base, _, _ := strings.Cut(name, deletedMarker)
	return base
}

// detachIfParentIsLevel detaches actor when object sits directly under
// its level object.
func (e *Engine) detachIfParentIsLevel(object *replication.Object, actor scene.EntityID) bool {
	parent := object.Parent()
	if parent == nil || !parent.Type().IsScope() {
		return false
	}
	if ent := e.world.Entity(actor); ent != nil && ent.Parent() != scene.NoEntity {
		e.world.Quietly(func() { e.world.Detach(actor) })
	}
	return true
}

func lockHolder(object *replication.Object) *replication.User {
	if object.IsFullyLocked() {
		return object.LockHolder()
	}
	return nil
}
