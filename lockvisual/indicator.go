// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lockvisual

import (
	"log/slog"

	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// Config configures an Indicator.
type Config struct {
	World   *scene.World
	Palette *Palette

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Indicator adds and removes lock decorations on actors.
type Indicator struct {
	world   *scene.World
	palette *Palette
	logger  *slog.Logger

	// materials holds the material currently shown on each decorated
	// actor.
	materials map[scene.EntityID]string
}

// New returns an indicator for the given world.
func New(config Config) *Indicator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicator{
		world:     config.World,
		palette:   config.Palette,
		logger:    logger,
		materials: make(map[scene.EntityID]string),
	}
}

// IsLandscape reports whether class uses the landscape material.
func (i *Indicator) IsLandscape(class string) bool {
	for _, landscape := range i.palette.landscapeClasses {
		if i.world.IsA(class, landscape) {
			return true
		}
	}
	return false
}

func (i *Indicator) materialFor(actor *scene.Entity, holder *replication.User) string {
	if i.IsLandscape(actor.Class()) {
		return i.palette.LandscapeMaterial(holder)
	}
	return i.palette.Material(holder)
}

// Decorations returns the lock decorations on actor.
func (i *Indicator) Decorations(actor scene.EntityID) []scene.EntityID {
	e := i.world.Entity(actor)
	if e == nil {
		return nil
	}
	var decorations []scene.EntityID
	for _, id := range e.Components() {
		if c := i.world.Entity(id); c != nil && c.IsDecoration() {
			decorations = append(decorations, id)
		}
	}
	return decorations
}

// Material returns the material shown on actor's decorations, or "" when
// it is not decorated.
func (i *Indicator) Material(actor scene.EntityID) string {
	return i.materials[actor]
}

// Apply decorates actor as locked by holder and stops it from being
// moved. An actor that is already decorated is left alone.
func (i *Indicator) Apply(actor scene.EntityID, holder *replication.User) {
	e := i.world.Entity(actor)
	if e == nil || e.Kind() != scene.KindActor {
		return
	}
	landscape := i.IsLandscape(e.Class())
	if e.LockLocation() && (!landscape || len(i.Decorations(actor)) > 0) {
		return
	}
	i.world.SetLockLocation(actor, true)
	material := i.materialFor(e, holder)
	i.materials[actor] = material

	added := 0
	for _, id := range e.Components() {
		c := i.world.Entity(id)
		if c == nil || c.IsDecoration() || c.Mesh() == scene.MeshNone {
			continue
		}
		if c.Mesh() == scene.MeshSpline {
			// Decorations on spline meshes render detached from the spline.
			continue
		}
		if _, err := i.world.AddDecoration(id, c.Mesh(), material); err != nil {
			i.logger.Warn("adding lock decoration", "entity", e.String(), "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		i.addRootDecoration(e, material)
	}
	i.logger.Debug("applied lock decoration",
		"entity", e.String(), "holder", holderName(holder), "material", material)
}

// addRootDecoration marks an actor without decoratable meshes. Brushes
// get a decoration showing their model.
func (i *Indicator) addRootDecoration(actor *scene.Entity, material string) {
	root := i.world.RootComponent(actor.ID())
	if root == scene.NoEntity {
		return
	}
	mesh := scene.MeshNone
	if i.world.IsA(actor.Class(), scene.ClassBrush) {
		mesh = scene.MeshModel
	}
	decoration, err := i.world.AddDecoration(root, mesh, material)
	if err != nil {
		i.logger.Warn("adding lock decoration", "entity", actor.String(), "error", err)
		return
	}
	if mesh == scene.MeshModel {
		i.world.SetModelRevision(decoration, actor.ModelRevision())
	}
}

// Remove destroys actor's decorations, lets it move again and runs a
// reselect so the editor refreshes its transform handles.
func (i *Indicator) Remove(actor scene.EntityID) {
	e := i.world.Entity(actor)
	if e == nil {
		return
	}
	decorations := i.Decorations(actor)
	if len(decorations) == 0 && !e.LockLocation() {
		return
	}
	for _, decoration := range decorations {
		i.world.DestroyComponent(decoration)
	}
	i.world.SetLockLocation(actor, false)
	delete(i.materials, actor)
	i.world.Reselect(actor)
	i.logger.Debug("removed lock decoration", "entity", e.String())
}

// OnHolderChanged recolours actor's decorations for a new holder without
// recreating them.
func (i *Indicator) OnHolderChanged(actor scene.EntityID, holder *replication.User) {
	e := i.world.Entity(actor)
	if e == nil {
		return
	}
	decorations := i.Decorations(actor)
	if len(decorations) == 0 {
		return
	}
	material := i.materialFor(e, holder)
	i.materials[actor] = material
	for _, decoration := range decorations {
		i.world.SetMaterial(decoration, material)
	}
}

// RefreshModelMesh rebuilds the model decoration of a locked brush so it
// shows the brush's current model.
func (i *Indicator) RefreshModelMesh(actor scene.EntityID) {
	e := i.world.Entity(actor)
	if e == nil || !e.LockLocation() || !i.world.IsA(e.Class(), scene.ClassBrush) {
		return
	}
	material, ok := i.materials[actor]
	if !ok {
		return
	}
	i.RemoveModelMesh(actor)
	i.addRootDecoration(e, material)
}

// RemoveModelMesh destroys the model decoration of a brush. The actor
// stays locked in place.
func (i *Indicator) RemoveModelMesh(actor scene.EntityID) {
	for _, decoration := range i.Decorations(actor) {
		if c := i.world.Entity(decoration); c != nil && c.Mesh() == scene.MeshModel {
			i.world.DestroyComponent(decoration)
		}
	}
}

func holderName(holder *replication.User) string {
	if holder == nil {
		return ""
	}
	return holder.Name
}
