// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/scenesync/geometry"
)

var (
	// ErrNoEntity is returned for ids that do not name a live entity.
	ErrNoEntity = errors.New("scene: no such entity")

	// ErrUnknownClass is returned when spawning a class the world does
	// not know.
	ErrUnknownClass = errors.New("scene: unknown class")

	// ErrNameTaken is returned when a requested name is already used in
	// the level, by a live or destroyed entity.
	ErrNameTaken = errors.New("scene: name taken")
)

// World is the editor's world.
type World struct {
	classes  map[string]Class
	entities map[EntityID]*Entity
	// order lists entity ids in creation order.
	order    []EntityID
	nextID   EntityID
	levels   []EntityID
	defaults map[string]EntityID

	// folders holds each level's folder paths. Folders exist on their
	// own and survive becoming empty until deleted.
	folders map[EntityID]map[string]bool

	selection []EntityID
	moving    bool

	needsRebuild map[EntityID]bool
	rebuilds     int
	collections  int

	subscribers     map[int]func(Event)
	subscriberOrder []int
	nextSubscriber  int
	quiet           int
}

// NewWorld returns an empty world with [DefaultClasses] registered.
func NewWorld() *World {
	w := &World{
		classes:      make(map[string]Class),
		entities:     make(map[EntityID]*Entity),
		defaults:     make(map[string]EntityID),
		folders:      make(map[EntityID]map[string]bool),
		needsRebuild: make(map[EntityID]bool),
		subscribers:  make(map[int]func(Event)),
	}
	for _, class := range DefaultClasses() {
		w.RegisterClass(class)
	}
	return w
}

// Entity returns the entity with the given id, including destroyed
// entities that have not been collected. Returns nil otherwise.
func (w *World) Entity(id EntityID) *Entity {
	return w.entities[id]
}

// IsValid reports whether id names an entity that is not destroyed.
func (w *World) IsValid(id EntityID) bool {
	e := w.entities[id]
	return e != nil && !e.destroyed
}

func (w *World) live(id EntityID) (*Entity, error) {
	e := w.entities[id]
	if e == nil || e.destroyed {
		return nil, fmt.Errorf("%w: %d", ErrNoEntity, id)
	}
	return e, nil
}

func (w *World) add(e *Entity) *Entity {
	w.nextID++
	e.id = w.nextID
	w.entities[e.id] = e
	w.order = append(w.order, e.id)
	return e
}

// AddLevel creates a level.
func (w *World) AddLevel(name string) EntityID {
	level := w.add(&Entity{kind: KindLevel, name: name, label: name})
	w.levels = append(w.levels, level.id)
	w.folders[level.id] = make(map[string]bool)
	w.emit(Event{Kind: EventLevelAdded, Entity: level.id})
	return level.id
}

// RemoveLevel removes a level with all of its actors.
func (w *World) RemoveLevel(level EntityID) {
	e := w.entities[level]
	if e == nil || e.kind != KindLevel {
		return
	}
	w.emit(Event{Kind: EventLevelRemoved, Entity: level})
	for _, id := range slices.Clone(w.order) {
		if actor := w.entities[id]; actor != nil && actor.kind == KindActor && actor.level == level {
			w.deselect(actor)
			w.forget(actor)
		}
	}
	w.levels = slices.DeleteFunc(w.levels, func(id EntityID) bool { return id == level })
	delete(w.folders, level)
	delete(w.needsRebuild, level)
	w.forget(e)
}

// Levels returns the levels in creation order.
func (w *World) Levels() []EntityID { return slices.Clone(w.levels) }

// LevelByName returns the level with the given name, or NoEntity.
func (w *World) LevelByName(name string) EntityID {
	for _, id := range w.levels {
		if w.entities[id].name == name {
			return id
		}
	}
	return NoEntity
}

// Actors returns a level's live actors in creation order.
func (w *World) Actors(level EntityID) []EntityID {
	var actors []EntityID
	for _, id := range w.order {
		e := w.entities[id]
		if e != nil && e.kind == KindActor && e.level == level && !e.destroyed {
			actors = append(actors, id)
		}
	}
	return actors
}

// SpawnParams describes an actor to spawn.
type SpawnParams struct {
	Level EntityID
	Class string

	// Name must be unique in the level. Empty picks one from the class.
	Name string

	// Label defaults to the name.
	Label  string
	Folder string

	// Transient actors are editor-internal and never replicate.
	Transient bool

	// Model is the initial brush model. Ignored for non-brush classes.
	Model *geometry.Model
}

// Spawn creates an actor with the components of its class.
func (w *World) Spawn(params SpawnParams) (EntityID, error) {
	level := w.entities[params.Level]
	if level == nil || level.kind != KindLevel {
		return NoEntity, fmt.Errorf("spawning %s: level %d: %w", params.Class, params.Level, ErrNoEntity)
	}
	class, ok := w.classes[params.Class]
	if !ok {
		return NoEntity, fmt.Errorf("spawning %q: %w", params.Class, ErrUnknownClass)
	}
	name := params.Name
	if name == "" {
		name = w.uniqueName(params.Level, class.Name, NoEntity)
	} else if w.FindByName(params.Level, name) != NoEntity {
		return NoEntity, fmt.Errorf("spawning %q: %w", name, ErrNameTaken)
	}
	label := params.Label
	if label == "" {
		label = name
	}

	actor := w.add(&Entity{
		kind:       KindActor,
		class:      class.Name,
		name:       name,
		label:      label,
		level:      params.Level,
		transient:  params.Transient,
		properties: make(map[string]any),
	})
	w.addFolder(params.Level, params.Folder)
	actor.folder = params.Folder
	root := NoEntity
	for _, template := range class.Components {
		component := w.newComponent(actor, template, root)
		if root == NoEntity {
			component.root = true
			root = component.id
		}
	}
	if w.IsA(class.Name, ClassBrush) && params.Model != nil {
		actor.model = params.Model.Clone()
		actor.modelRevision++
	}
	w.emit(Event{Kind: EventActorAdded, Entity: actor.id})
	return actor.id, nil
}

func (w *World) newComponent(actor *Entity, template ComponentTemplate, parent EntityID) *Entity {
	component := w.add(&Entity{
		kind:       KindComponent,
		class:      template.Class,
		name:       template.Name,
		label:      template.Name,
		level:      actor.level,
		actor:      actor.id,
		parent:     parent,
		template:   template,
		transform:  IdentityTransform(),
		properties: make(map[string]any),
	})
	actor.components = append(actor.components, component.id)
	return component
}

// AddComponent adds a component to an actor under parent (NoEntity
// attaches to the root component). Names must be unique on the actor.
func (w *World) AddComponent(actor EntityID, template ComponentTemplate, parent EntityID) (EntityID, error) {
	owner, err := w.live(actor)
	if err != nil || owner.kind != KindActor {
		return NoEntity, fmt.Errorf("adding component %q: actor %d: %w", template.Name, actor, ErrNoEntity)
	}
	if w.ComponentByName(actor, template.Name) != NoEntity {
		return NoEntity, fmt.Errorf("adding component %q: %w", template.Name, ErrNameTaken)
	}
	if parent == NoEntity {
		parent = w.RootComponent(actor)
	}
	component := w.newComponent(owner, template, parent)
	if len(owner.components) == 1 {
		component.root = true
		component.parent = NoEntity
	}
	return component.id, nil
}

// DestroyComponent removes a component and the components under it.
// Root components cannot be destroyed.
func (w *World) DestroyComponent(id EntityID) {
	component := w.entities[id]
	if component == nil || component.kind != KindComponent || component.root {
		return
	}
	for _, child := range w.childComponents(component) {
		w.DestroyComponent(child)
	}
	if owner := w.entities[component.actor]; owner != nil {
		owner.components = slices.DeleteFunc(owner.components, func(c EntityID) bool { return c == id })
	}
	w.forget(component)
}

// MoveComponent moves a non-root component to another actor, under its
// root component.
func (w *World) MoveComponent(id, actor EntityID) error {
	component, err := w.live(id)
	if err != nil || component.kind != KindComponent || component.root {
		return fmt.Errorf("moving component %d: %w", id, ErrNoEntity)
	}
	target, err := w.live(actor)
	if err != nil || target.kind != KindActor {
		return fmt.Errorf("moving component to actor %d: %w", actor, ErrNoEntity)
	}
	if previous := w.entities[component.actor]; previous != nil {
		previous.components = slices.DeleteFunc(previous.components, func(c EntityID) bool { return c == id })
	}
	component.actor = actor
	component.level = target.level
	component.parent = w.RootComponent(actor)
	target.components = append(target.components, id)
	return nil
}

func (w *World) childComponents(parent *Entity) []EntityID {
	owner := w.entities[parent.actor]
	if owner == nil {
		return nil
	}
	var children []EntityID
	for _, id := range owner.components {
		if c := w.entities[id]; c != nil && c.parent == parent.id {
			children = append(children, id)
		}
	}
	return children
}

// RootComponent returns an actor's root component, or NoEntity.
func (w *World) RootComponent(actor EntityID) EntityID {
	owner := w.entities[actor]
	if owner == nil {
		return NoEntity
	}
	for _, id := range owner.components {
		if c := w.entities[id]; c != nil && c.root {
			return id
		}
	}
	return NoEntity
}

// ComponentByName returns the actor's component with the given name.
func (w *World) ComponentByName(actor EntityID, name string) EntityID {
	owner := w.entities[actor]
	if owner == nil {
		return NoEntity
	}
	for _, id := range owner.components {
		if c := w.entities[id]; c != nil && c.name == name {
			return id
		}
	}
	return NoEntity
}

// Destroy marks an actor destroyed. It stays findable by name until
// collected so an undo can restore it. Attached actors are detached.
func (w *World) Destroy(id EntityID) {
	actor := w.entities[id]
	if actor == nil || actor.kind != KindActor || actor.destroyed {
		return
	}
	w.emit(Event{Kind: EventActorDeleted, Entity: id})
	w.deselect(actor)
	actor.destroyed = true
	for _, child := range actor.attached {
		if attached := w.entities[child]; attached != nil {
			attached.parent = NoEntity
		}
	}
	actor.attached = nil
	if parent := w.entities[actor.parent]; parent != nil {
		parent.attached = slices.DeleteFunc(parent.attached, func(c EntityID) bool { return c == id })
	}
}

// Restore brings back a destroyed actor that has not been collected. It
// emits nothing; undo wraps it in [World.ApplyUndo].
func (w *World) Restore(id EntityID) error {
	actor := w.entities[id]
	if actor == nil || actor.kind != KindActor {
		return fmt.Errorf("restoring %d: %w", id, ErrNoEntity)
	}
	actor.destroyed = false
	actor.parent = NoEntity
	return nil
}

// Pin protects a destroyed actor from collection, or releases it.
func (w *World) Pin(id EntityID, pinned bool) {
	if e := w.entities[id]; e != nil {
		e.pinned = pinned
	}
}

// CollectGarbage drops destroyed actors that are not pinned and returns
// how many were dropped.
func (w *World) CollectGarbage() int {
	w.collections++
	collected := 0
	for _, id := range slices.Clone(w.order) {
		e := w.entities[id]
		if e != nil && e.kind == KindActor && e.destroyed && !e.pinned {
			w.forget(e)
			collected++
		}
	}
	return collected
}

// Collections counts CollectGarbage calls.
func (w *World) Collections() int { return w.collections }

// forget drops an entity and its components from the world.
func (w *World) forget(e *Entity) {
	for _, component := range e.components {
		delete(w.entities, component)
	}
	delete(w.entities, e.id)
	w.order = slices.DeleteFunc(w.order, func(id EntityID) bool {
		return w.entities[id] == nil
	})
}

// FindByName returns the level's actor with the given name, including
// destroyed actors that have not been collected.
func (w *World) FindByName(level EntityID, name string) EntityID {
	for _, id := range w.order {
		e := w.entities[id]
		if e.kind == KindActor && e.level == level && e.name == name {
			return id
		}
	}
	return NoEntity
}

// Rename changes an actor's name. It fails if another actor in the level
// already uses the name.
func (w *World) Rename(id EntityID, name string) bool {
	e := w.entities[id]
	if e == nil || e.kind != KindActor {
		return false
	}
	if e.name == name {
		return true
	}
	if w.FindByName(e.level, name) != NoEntity {
		return false
	}
	e.name = name
	return true
}

// SetLabel changes an actor's display label. A changed label also
// renames the actor to a name derived from it.
func (w *World) SetLabel(id EntityID, label string) {
	e := w.entities[id]
	if e == nil || e.kind != KindActor || e.label == label {
		return
	}
	e.label = label
	base := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', ':', '/':
			return '_'
		}
		return r
	}, label)
	if base == "" {
		base = e.class
	}
	if existing := w.FindByName(e.level, base); existing == NoEntity || existing == id {
		e.name = base
	} else {
		e.name = w.uniqueName(e.level, base, id)
	}
	w.emit(Event{Kind: EventLabelChanged, Entity: id})
}

func (w *World) uniqueName(level EntityID, base string, self EntityID) string {
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if existing := w.FindByName(level, name); existing == NoEntity || existing == self {
			return name
		}
	}
}

// DefaultFor returns the class default object for class, creating it on
// first use.
func (w *World) DefaultFor(class string) (EntityID, error) {
	if id, ok := w.defaults[class]; ok {
		return id, nil
	}
	resolved, ok := w.classes[class]
	if !ok {
		return NoEntity, fmt.Errorf("default for %q: %w", class, ErrUnknownClass)
	}
	e := w.add(&Entity{
		kind:       KindDefault,
		class:      resolved.Name,
		name:       "Default__" + resolved.Name,
		properties: make(map[string]any),
	})
	w.defaults[class] = e.id
	return e.id, nil
}
