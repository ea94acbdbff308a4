// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"

	"cogentcore.org/core/math32"

	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// Component object keys that only the engine reads.
const (
	propMesh  = "mesh"
	propScene = "scene"
)

var _ replication.Handler = (*ComponentSync)(nil)

// ComponentSync keeps an actor's components and their child objects in
// agreement. It handles remote changes to component objects.
type ComponentSync struct {
	engine *Engine
}

func syncableComponent(component *scene.Entity) bool {
	return component != nil && component.Kind() == scene.KindComponent &&
		!component.IsDecoration() && !component.IsTransient()
}

// createObjects adds a child object for each component of actor to the
// local actorObject.
func (c *ComponentSync) createObjects(actor *scene.Entity, actorObject *replication.Object) {
	for _, id := range actor.Components() {
		component := c.engine.world.Entity(id)
		if !syncableComponent(component) {
			continue
		}
		object := c.createObject(component)
		if object == nil {
			continue
		}
		if err := actorObject.AddChild(object, -1); err != nil {
			c.engine.logger.Warn("adding component object", "component", component.String(), "error", err)
		}
	}
}

func (c *ComponentSync) createObject(component *scene.Entity) *replication.Object {
	e := c.engine
	if stale := e.registry.Lookup(component.ID()); stale != nil {
		e.registry.Unbind(stale)
	}
	properties := replication.Properties{
		replication.PropName:  replication.String(component.Name()),
		replication.PropClass: replication.String(component.Class()),
		propMesh:              replication.Int(int64(component.Mesh())),
		propScene:             replication.Bool(component.IsSceneComponent()),
	}
	if component.IsRoot() {
		properties[replication.PropIsRoot] = replication.Bool(true)
	}
	if component.IsSceneComponent() {
		transformProperties(component.Transform(), properties)
	}
	e.properties.CreateProperties(component.ID(), properties)
	object := replication.NewObject(replication.TypeComponent, properties)
	if err := e.registry.Bind(component.ID(), object); err != nil {
		e.logger.Warn("binding component object", "component", component.String(), "error", err)
		return nil
	}
	return object
}

// initialize finds or adds the component for a remote component object
// of actor and applies its state. Actors attached under the component
// are created too.
func (c *ComponentSync) initialize(actor scene.EntityID, object *replication.Object) {
	e := c.engine
	name := object.Get(replication.PropName).Str
	var component scene.EntityID
	if object.Get(replication.PropIsRoot).Bool {
		component = e.world.RootComponent(actor)
	} else {
		component = e.world.ComponentByName(actor, name)
	}
	if component != scene.NoEntity {
		if bound := e.registry.Lookup(component); bound != nil && bound != object {
			if bound.IsSyncing() {
				e.logger.Warn("component already bound", "object_id", object.ID(), "name", name)
				return
			}
			e.registry.Unbind(bound)
		}
	} else {
		template := scene.ComponentTemplate{
			Name:  name,
			Class: object.Get(replication.PropClass).Str,
			Mesh:  scene.MeshKind(object.Get(propMesh).Int),
			Scene: object.Get(propScene).Bool,
		}
		id, err := e.world.AddComponent(actor, template, scene.NoEntity)
		if err != nil {
			e.logger.Warn("adding remote component", "object_id", object.ID(), "error", err)
			return
		}
		component = id
	}
	if err := e.registry.Bind(component, object); err != nil {
		e.logger.Warn("binding remote component", "object_id", object.ID(), "error", err)
		return
	}
	c.applyTransform(component, object)
	e.properties.ApplyProperties(object, component)
	for _, child := range object.Children() {
		e.dispatchCreate(child)
	}
}

// destroyUnsynced removes components of actor that have no object and
// moves components whose objects belong to another actor back to it.
func (c *ComponentSync) destroyUnsynced(actor scene.EntityID) {
	e := c.engine
	ent := e.world.Entity(actor)
	if ent == nil {
		return
	}
	for _, id := range ent.Components() {
		component := e.world.Entity(id)
		if !syncableComponent(component) {
			continue
		}
		object := e.registry.Lookup(id)
		if object == nil {
			e.world.DestroyComponent(id)
			continue
		}
		owner := e.registry.Resolve(object.Ancestor(replication.TypeActor))
		if owner != scene.NoEntity && owner != actor {
			if err := e.world.MoveComponent(id, owner); err != nil {
				e.logger.Warn("returning component", "component", component.String(), "error", err)
			}
		}
	}
}

// syncComponents uploads components added to a selected actor and
// deletes the objects of components it lost.
func (c *ComponentSync) syncComponents(actor scene.EntityID, actorObject *replication.Object) {
	e := c.engine
	ent := e.world.Entity(actor)
	if ent == nil || actorObject.IsFullyLocked() || actorObject.IsDeletePending() {
		return
	}
	for _, child := range actorObject.Children() {
		if child.Type() != replication.TypeComponent {
			continue
		}
		component := e.registry.Resolve(child)
		if component != scene.NoEntity && e.world.Entity(component) != nil {
			continue
		}
		e.registry.Unbind(child)
		if err := e.session.Delete(child); err != nil {
			e.logger.Warn("deleting component object", "object_id", child.ID(), "error", err)
		}
	}
	var created []*replication.Object
	for _, id := range ent.Components() {
		component := e.world.Entity(id)
		if !syncableComponent(component) {
			continue
		}
		if bound := e.registry.Lookup(id); bound != nil && bound.IsSyncing() {
			continue
		}
		if object := c.createObject(component); object != nil {
			created = append(created, object)
		}
	}
	if len(created) == 0 {
		return
	}
	if err := e.createBatch(created, actorObject, -1); err != nil {
		e.logger.Warn("creating component objects", "entity", ent.String(), "error", err)
		for _, object := range created {
			e.registry.Unbind(object)
		}
	}
}

// syncTransforms sends the transforms of every scene component of
// actor.
func (c *ComponentSync) syncTransforms(actor scene.EntityID) {
	ent := c.engine.world.Entity(actor)
	if ent == nil {
		return
	}
	for _, id := range ent.Components() {
		if syncableComponent(c.engine.world.Entity(id)) {
			c.syncTransform(id, false)
		}
	}
}

// syncTransform sends a component's transform. With applyServer, or
// when the object is locked, the server's transform is applied to the
// component instead.
func (c *ComponentSync) syncTransform(component scene.EntityID, applyServer bool) {
	e := c.engine
	ent := e.world.Entity(component)
	object := e.registry.Lookup(component)
	if ent == nil || !ent.IsSceneComponent() || object == nil || !object.IsSyncing() {
		return
	}
	if applyServer || object.IsLocked() {
		c.applyTransform(component, object)
		return
	}
	properties := make(replication.Properties, 3)
	transformProperties(ent.Transform(), properties)
	for _, key := range properties.Keys() {
		if err := object.Set(key, properties[key]); err != nil {
			if errors.Is(err, replication.ErrLocked) {
				c.applyTransform(component, object)
				return
			}
			e.logger.Warn("syncing transform", "object_id", object.ID(), "error", err)
			return
		}
	}
}

func (c *ComponentSync) applyTransform(component scene.EntityID, object *replication.Object) {
	transform, ok := transformFrom(object)
	if !ok {
		return
	}
	c.engine.world.Quietly(func() { c.engine.world.SetTransform(component, transform) })
}

// OnCreate adds a component created remotely on an existing actor.
func (c *ComponentSync) OnCreate(object *replication.Object, _ int) {
	e := c.engine
	actor := e.registry.Resolve(object.Ancestor(replication.TypeActor))
	if actor == scene.NoEntity {
		return
	}
	e.world.Quietly(func() { c.initialize(actor, object) })
}

// OnDelete removes a component deleted remotely and destroys the actors
// attached under it.
func (c *ComponentSync) OnDelete(object *replication.Object) {
	e := c.engine
	e.cleanUpChildren(object, nil, true)
	component := e.registry.Unbind(object)
	if component != scene.NoEntity {
		e.world.Quietly(func() { e.world.DestroyComponent(component) })
	}
}

func (c *ComponentSync) OnLock(*replication.Object) {}
func (c *ComponentSync) OnUnlock(*replication.Object) {}
func (c *ComponentSync) OnLockOwnerChange(*replication.Object) {}

// OnParentChange moves a component to the actor now owning its object.
func (c *ComponentSync) OnParentChange(object *replication.Object, _ int) {
	e := c.engine
	component := e.registry.Resolve(object)
	actor := e.registry.Resolve(object.Ancestor(replication.TypeActor))
	if component == scene.NoEntity || actor == scene.NoEntity {
		return
	}
	if e.world.Entity(component).Actor() == actor {
		return
	}
	if err := e.world.MoveComponent(component, actor); err != nil {
		e.logger.Warn("moving component", "object_id", object.ID(), "error", err)
	}
}

// OnPropertyChange applies a remote write to a component.
func (c *ComponentSync) OnPropertyChange(object *replication.Object, key string) {
	e := c.engine
	component := e.registry.Resolve(object)
	if component == scene.NoEntity {
		return
	}
	switch key {
	case replication.PropLocation, replication.PropRotation, replication.PropScale:
		c.applyTransform(component, object)
	default:
		if hostKey, ok := HostKey(key); ok {
			e.properties.ApplyProperty(object, component, hostKey)
		}
	}
}

func transformProperties(t scene.Transform, properties replication.Properties) {
	properties[replication.PropLocation] = replication.Floats(t.Location.X, t.Location.Y, t.Location.Z)
	properties[replication.PropRotation] = replication.Floats(t.Rotation.X, t.Rotation.Y, t.Rotation.Z, t.Rotation.W)
	properties[replication.PropScale] = replication.Floats(t.Scale.X, t.Scale.Y, t.Scale.Z)
}

func transformFrom(object *replication.Object) (scene.Transform, bool) {
	location := object.Get(replication.PropLocation).Floats
	rotation := object.Get(replication.PropRotation).Floats
	scale := object.Get(replication.PropScale).Floats
	if len(location) != 3 || len(rotation) != 4 || len(scale) != 3 {
		return scene.Transform{}, false
	}
	return scene.Transform{
		Location: math32.Vec3(location[0], location[1], location[2]),
		Rotation: math32.Quat{X: rotation[0], Y: rotation[1], Z: rotation[2], W: rotation[3]},
		Scale:    math32.Vec3(scale[0], scale[1], scale[2]),
	}, true
}
