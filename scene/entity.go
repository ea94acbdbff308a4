// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"fmt"
	"maps"
	"slices"

	"cogentcore.org/core/math32"

	"github.com/bureau-foundation/scenesync/geometry"
)

// EntityID identifies an entity within a World. Ids are never reused.
type EntityID uint64

// NoEntity is the zero EntityID.
const NoEntity EntityID = 0

// LocalRef converts the id for use inside brush geometry.
func (id EntityID) LocalRef() geometry.LocalRef { return geometry.LocalRef(id) }

// EntityFromLocalRef is the inverse of [EntityID.LocalRef].
func EntityFromLocalRef(ref geometry.LocalRef) EntityID { return EntityID(ref) }

// Kind is the role of an entity.
type Kind uint8

const (
	KindLevel Kind = iota + 1
	KindActor
	KindComponent
	// KindDefault is a class default object, the template shared by
	// every instance of a class.
	KindDefault
)

func (k Kind) String() string {
	switch k {
	case KindLevel:
		return "level"
	case KindActor:
		return "actor"
	case KindComponent:
		return "component"
	case KindDefault:
		return "default"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Transform places a scene component relative to its parent.
type Transform struct {
	Location math32.Vector3
	Rotation math32.Quat
	Scale    math32.Vector3
}

// IdentityTransform is the transform of a freshly spawned actor.
func IdentityTransform() Transform {
	return Transform{
		Rotation: math32.Quat{W: 1},
		Scale:    math32.Vec3(1, 1, 1),
	}
}

// Entity is a level, actor or component. Fields are read through
// accessors; all changes go through the World.
type Entity struct {
	id    EntityID
	kind  Kind
	class string
	name  string
	label string

	folder string
	level  EntityID

	// parent is the attach parent actor for actors and the parent
	// component for components (NoEntity for a root component).
	parent EntityID
	// attached lists actors attached to this actor.
	attached []EntityID

	// actor is the owning actor of a component.
	actor      EntityID
	components []EntityID
	template   ComponentTemplate
	root       bool
	decoration bool
	material   string

	transform Transform

	selected     bool
	destroyed    bool
	pinned       bool
	transient    bool
	lockLocation bool
	reselects    int

	missingClass  string
	model         *geometry.Model
	modelRevision int
	properties    map[string]any
}

func (e *Entity) ID() EntityID { return e.id }
func (e *Entity) Kind() Kind { return e.kind }
func (e *Entity) Class() string { return e.class }
func (e *Entity) Name() string { return e.name }
func (e *Entity) Label() string { return e.label }
func (e *Entity) Folder() string { return e.folder }
func (e *Entity) Level() EntityID { return e.level }
func (e *Entity) Parent() EntityID { return e.parent }
func (e *Entity) Actor() EntityID { return e.actor }
func (e *Entity) Transform() Transform { return e.transform }
func (e *Entity) IsSelected() bool { return e.selected }
func (e *Entity) IsDestroyed() bool { return e.destroyed }
func (e *Entity) IsPinned() bool { return e.pinned }
func (e *Entity) IsTransient() bool { return e.transient }
func (e *Entity) IsRoot() bool { return e.root }
func (e *Entity) IsDecoration() bool { return e.decoration }
func (e *Entity) Mesh() MeshKind { return e.template.Mesh }
func (e *Entity) IsSceneComponent() bool { return e.template.Scene }
func (e *Entity) Material() string { return e.material }
func (e *Entity) LockLocation() bool { return e.lockLocation }

// Reselects counts forced deselect/select cycles.
func (e *Entity) Reselects() int { return e.reselects }

// MissingClass is the unavailable class a stand-in replaces.
func (e *Entity) MissingClass() string { return e.missingClass }

// Model returns the brush model, or nil. Callers must not modify it;
// use [World.EditGeometry] or [World.SetModel].
func (e *Entity) Model() *geometry.Model { return e.model }

// ModelRevision increases every time the brush model changes.
func (e *Entity) ModelRevision() int { return e.modelRevision }

// Attached returns the actors attached to this actor.
func (e *Entity) Attached() []EntityID { return slices.Clone(e.attached) }

// Components returns an actor's components in creation order,
// decorations included.
func (e *Entity) Components() []EntityID { return slices.Clone(e.components) }

// Property returns a generic host property.
func (e *Entity) Property(key string) (any, bool) {
	value, ok := e.properties[key]
	return value, ok
}

// Properties returns a copy of the generic host properties.
func (e *Entity) Properties() map[string]any {
	return maps.Clone(e.properties)
}

func (e *Entity) String() string {
	if e.name == "" {
		return fmt.Sprintf("%s#%d", e.kind, e.id)
	}
	return fmt.Sprintf("%s %q", e.kind, e.name)
}
