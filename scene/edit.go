// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/scenesync/geometry"
)

// SetFolder moves an actor to a folder path. Empty means the level root.
func (w *World) SetFolder(id EntityID, folder string) {
	e := w.entities[id]
	if e == nil || e.kind != KindActor || e.folder == folder {
		return
	}
	old := e.folder
	e.folder = folder
	w.addFolder(e.level, folder)
	w.emit(Event{Kind: EventFolderChanged, Entity: id, OldFolder: old})
}

func (w *World) addFolder(level EntityID, folder string) {
	if folder == "" || w.folders[level] == nil {
		return
	}
	w.folders[level][folder] = true
}

// Folders returns a level's folder paths, sorted.
func (w *World) Folders(level EntityID) []string {
	var folders []string
	for folder := range w.folders[level] {
		folders = append(folders, folder)
	}
	slices.Sort(folders)
	return folders
}

// DeleteFolder removes a folder and its subfolders. Actors inside keep
// their folder path.
func (w *World) DeleteFolder(level EntityID, folder string) {
	for existing := range w.folders[level] {
		if IsFolderWithin(existing, folder) {
			delete(w.folders[level], existing)
		}
	}
}

// IsFolderWithin reports whether path is folder or one of its
// subfolders.
func IsFolderWithin(path, folder string) bool {
	return path == folder || strings.HasPrefix(path, folder+"/")
}

// Attach attaches child to parent, keeping the child's relative
// transform. Both must be live actors in the same level.
func (w *World) Attach(child, parent EntityID) error {
	c, err := w.live(child)
	if err != nil || c.kind != KindActor {
		return fmt.Errorf("attaching %d: %w", child, ErrNoEntity)
	}
	p, err := w.live(parent)
	if err != nil || p.kind != KindActor || p.level != c.level {
		return fmt.Errorf("attaching %d to %d: %w", child, parent, ErrNoEntity)
	}
	for ancestor := p; ancestor != nil; ancestor = w.entities[ancestor.parent] {
		if ancestor.id == child {
			return fmt.Errorf("scene: attaching %s to its own descendant %s", c, p)
		}
	}
	if c.parent == parent {
		return nil
	}
	w.unlink(c)
	c.parent = parent
	p.attached = append(p.attached, child)
	w.emit(Event{Kind: EventAttached, Entity: child, Parent: parent})
	return nil
}

// Detach detaches an actor from its attach parent.
func (w *World) Detach(child EntityID) {
	c := w.entities[child]
	if c == nil || c.kind != KindActor || c.parent == NoEntity {
		return
	}
	old := c.parent
	w.unlink(c)
	w.emit(Event{Kind: EventDetached, Entity: child, Parent: old})
}

func (w *World) unlink(c *Entity) {
	if parent := w.entities[c.parent]; parent != nil {
		parent.attached = slices.DeleteFunc(parent.attached, func(id EntityID) bool { return id == c.id })
	}
	c.parent = NoEntity
}

// Select adds an actor to the selection.
func (w *World) Select(id EntityID) {
	e := w.entities[id]
	if e == nil || e.kind != KindActor || e.destroyed || e.selected {
		return
	}
	e.selected = true
	w.selection = append(w.selection, id)
}

// Deselect removes an actor from the selection.
func (w *World) Deselect(id EntityID) {
	if e := w.entities[id]; e != nil {
		w.deselect(e)
	}
}

func (w *World) deselect(e *Entity) {
	if !e.selected {
		return
	}
	e.selected = false
	w.selection = slices.DeleteFunc(w.selection, func(id EntityID) bool { return id == e.id })
}

// Reselect runs a deselect/select cycle on a selected actor so the
// editor refreshes its transform handles.
func (w *World) Reselect(id EntityID) {
	e := w.entities[id]
	if e == nil || !e.selected {
		return
	}
	e.reselects++
}

// Selection returns the selected actors in selection order.
func (w *World) Selection() []EntityID { return slices.Clone(w.selection) }

// SetTransform sets the transform of an actor's root component, or of a
// component.
func (w *World) SetTransform(id EntityID, transform Transform) {
	e := w.entities[id]
	if e == nil {
		return
	}
	actor := id
	if e.kind == KindActor {
		e = w.entities[w.RootComponent(id)]
		if e == nil {
			return
		}
	} else {
		actor = e.actor
	}
	if e.transform == transform {
		return
	}
	e.transform = transform
	w.emit(Event{Kind: EventActorMoved, Entity: actor})
}

// Transform returns the transform of an actor's root component, or of a
// component.
func (w *World) Transform(id EntityID) Transform {
	e := w.entities[id]
	if e != nil && e.kind == KindActor {
		e = w.entities[w.RootComponent(id)]
	}
	if e == nil {
		return IdentityTransform()
	}
	return e.transform
}

// BeginMove starts an interactive drag of the given actor.
func (w *World) BeginMove(id EntityID) {
	w.moving = true
	w.emit(Event{Kind: EventMoveStarted, Entity: id})
}

// EndMove ends an interactive drag.
func (w *World) EndMove(id EntityID) {
	w.moving = false
	w.emit(Event{Kind: EventMoveEnded, Entity: id})
}

// IsMoving reports whether a drag is in progress.
func (w *World) IsMoving() bool { return w.moving }

// EditGeometry applies a local edit to a brush model. The brush gets an
// empty model first if it has none.
func (w *World) EditGeometry(id EntityID, tx Transaction, edit func(*geometry.Model)) error {
	e, err := w.live(id)
	if err != nil || e.kind != KindActor {
		return fmt.Errorf("editing geometry of %d: %w", id, ErrNoEntity)
	}
	if e.model == nil {
		e.model = geometry.NewEmpty()
	}
	edit(e.model)
	e.modelRevision++
	w.emit(Event{Kind: EventGeometryModified, Entity: id, Transaction: tx})
	return nil
}

// SetModel replaces a brush model without emitting an event.
func (w *World) SetModel(id EntityID, model *geometry.Model) {
	e := w.entities[id]
	if e == nil || e.kind != KindActor {
		return
	}
	e.model = model
	e.modelRevision++
}

// DirtyLevel reports a level-wide modification made by tx. The host
// sends it without a transaction for surface alignment edits.
func (w *World) DirtyLevel(level EntityID, tx Transaction) {
	w.emit(Event{Kind: EventLevelDirtied, Entity: level, Transaction: tx})
}

// MarkNeedsRebuild flags a level's scene geometry as stale.
func (w *World) MarkNeedsRebuild(level EntityID) {
	if e := w.entities[level]; e != nil && e.kind == KindLevel {
		w.needsRebuild[level] = true
	}
}

// NeedsRebuild reports whether any level's scene geometry is stale.
func (w *World) NeedsRebuild() bool { return len(w.needsRebuild) > 0 }

// RebuildGeometry rebuilds every stale level.
func (w *World) RebuildGeometry() {
	w.rebuilds++
	clear(w.needsRebuild)
}

// Rebuilds counts RebuildGeometry calls.
func (w *World) Rebuilds() int { return w.rebuilds }

// SetProperty sets a generic host property. Supported value types are
// string, bool, int64, []float32, []byte and EntityID. A nil value
// removes the property.
func (w *World) SetProperty(id EntityID, key string, value any) {
	e := w.entities[id]
	if e == nil || e.properties == nil {
		return
	}
	if value == nil {
		if _, ok := e.properties[key]; !ok {
			return
		}
		delete(e.properties, key)
	} else {
		e.properties[key] = value
	}
	w.emit(Event{Kind: EventPropertyChanged, Entity: id, Key: key})
}

// SetLockLocation sets the flag that stops an actor from being moved.
func (w *World) SetLockLocation(id EntityID, locked bool) {
	if e := w.entities[id]; e != nil {
		e.lockLocation = locked
	}
}

// ApplyUndo runs an undo or redo: apply makes the changes without events
// and then every touched entity gets an EventUndoRedo.
func (w *World) ApplyUndo(apply func(), touched ...EntityID) {
	w.Quietly(apply)
	for _, id := range touched {
		w.emit(Event{Kind: EventUndoRedo, Entity: id})
	}
}

// AddDecoration attaches a transient, unlisted component to the
// component parent. Decorations never replicate.
func (w *World) AddDecoration(parent EntityID, mesh MeshKind, material string) (EntityID, error) {
	p, err := w.live(parent)
	if err != nil || p.kind != KindComponent {
		return NoEntity, fmt.Errorf("decorating %d: %w", parent, ErrNoEntity)
	}
	owner := w.entities[p.actor]
	template := ComponentTemplate{
		Name:  fmt.Sprintf("Decoration%d", len(owner.components)),
		Class: "DecorationComponent",
		Mesh:  mesh,
		Scene: true,
	}
	decoration := w.newComponent(owner, template, parent)
	decoration.decoration = true
	decoration.transient = true
	decoration.material = material
	return decoration.id, nil
}

// SetMaterial sets a component's material.
func (w *World) SetMaterial(id EntityID, material string) {
	if e := w.entities[id]; e != nil && e.kind == KindComponent {
		e.material = material
	}
}

// SetModelRevision records which brush model revision a model mesh
// decoration shows.
func (w *World) SetModelRevision(id EntityID, revision int) {
	if e := w.entities[id]; e != nil && e.kind == KindComponent {
		e.modelRevision = revision
	}
}

// SetMissingClass records the class a stand-in replaces.
func (w *World) SetMissingClass(id EntityID, class string) {
	if e := w.entities[id]; e != nil {
		e.missingClass = class
	}
}
