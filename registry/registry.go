// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// ErrAlreadyBound is returned by Bind when either side already belongs to
// a different entry. Callers unbind first.
var ErrAlreadyBound = errors.New("registry: already bound")

// UnbindHook runs after an entry is removed.
type UnbindHook func(object *replication.Object, entity scene.EntityID)

// Registry is a bidirectional entity/object map.
type Registry struct {
	objects  map[scene.EntityID]*replication.Object
	entities map[*replication.Object]scene.EntityID
	hooks    map[replication.ObjectType][]UnbindHook
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		objects:  make(map[scene.EntityID]*replication.Object),
		entities: make(map[*replication.Object]scene.EntityID),
		hooks:    make(map[replication.ObjectType][]UnbindHook),
	}
}

// Bind associates entity with object. Binding a pair that is already
// bound to each other is a no-op.
func (r *Registry) Bind(entity scene.EntityID, object *replication.Object) error {
	if entity == scene.NoEntity || object == nil {
		return fmt.Errorf("registry: binding entity %d to %v: both sides are required", entity, object)
	}
	current, bound := r.objects[entity]
	if bound && current == object {
		return nil
	}
	if bound {
		return fmt.Errorf("entity %d is bound to %v: %w", entity, current, ErrAlreadyBound)
	}
	if other, ok := r.entities[object]; ok {
		return fmt.Errorf("%v is bound to entity %d: %w", object, other, ErrAlreadyBound)
	}
	r.objects[entity] = object
	r.entities[object] = entity
	return nil
}

// Lookup returns the object bound to entity, or nil. Objects that are
// delete-pending are still returned.
func (r *Registry) Lookup(entity scene.EntityID) *replication.Object {
	return r.objects[entity]
}

// Resolve returns the entity bound to object, or scene.NoEntity.
func (r *Registry) Resolve(object *replication.Object) scene.EntityID {
	if object == nil {
		return scene.NoEntity
	}
	return r.entities[object]
}

// Contains reports whether object is bound.
func (r *Registry) Contains(object *replication.Object) bool {
	_, ok := r.entities[object]
	return ok
}

// Unbind removes object's entry and returns the entity it was bound to,
// or scene.NoEntity if there was none. Hooks registered for the object's
// type run after removal.
func (r *Registry) Unbind(object *replication.Object) scene.EntityID {
	entity, ok := r.entities[object]
	if !ok {
		return scene.NoEntity
	}
	delete(r.entities, object)
	delete(r.objects, entity)
	for _, hook := range r.hooks[object.Type()] {
		hook(object, entity)
	}
	return entity
}

// UnbindEntity removes entity's entry and returns the object it was bound
// to, or nil.
func (r *Registry) UnbindEntity(entity scene.EntityID) *replication.Object {
	object := r.objects[entity]
	if object == nil {
		return nil
	}
	r.Unbind(object)
	return object
}

// OnUnbind registers hook for entries whose object has type t.
func (r *Registry) OnUnbind(t replication.ObjectType, hook UnbindHook) {
	r.hooks[t] = append(r.hooks[t], hook)
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.objects) }

// Clear drops every entry without running hooks. Used when the session
// ends and the bindings no longer mean anything.
func (r *Registry) Clear() {
	clear(r.objects)
	clear(r.entities)
}
