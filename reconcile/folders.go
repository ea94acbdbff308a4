// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"

	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

func (e *Engine) onFolderChanged(actor scene.EntityID) {
	object := e.registry.Lookup(actor)
	if object == nil || !object.IsSyncing() {
		return
	}
	if object.IsLocked() {
		e.revertFolders = appendUnique(e.revertFolders, actor)
		return
	}
	folder := e.world.Entity(actor).Folder()
	if err := object.Set(replication.PropFolder, replication.String(folder)); err != nil {
		e.logger.Warn("syncing folder", "object_id", object.ID(), "error", err)
		e.revertFolders = appendUnique(e.revertFolders, actor)
	}
}

// RevertLockedFolders restores the server folder of locked actors the
// user moved. The host applies folder moves after the change event, so
// the revert waits for the next tick.
func (e *Engine) RevertLockedFolders() {
	if len(e.revertFolders) == 0 {
		return
	}
	actors := e.revertFolders
	e.revertFolders = nil
	for _, actor := range actors {
		object := e.registry.Lookup(actor)
		if object == nil || !object.IsSyncing() {
			continue
		}
		folder := object.Get(replication.PropFolder).Str
		e.world.Quietly(func() { e.world.SetFolder(actor, folder) })
	}
}

func (e *Engine) onLabelChanged(actor scene.EntityID) {
	object := e.registry.Lookup(actor)
	if object == nil || !object.IsSyncing() {
		return
	}
	e.syncLabelAndName(actor, object)
}

// syncLabelAndName sends the actor's label and name, or restores the
// server's when the object is locked.
func (e *Engine) syncLabelAndName(actor scene.EntityID, object *replication.Object) {
	ent := e.world.Entity(actor)
	if !object.IsLocked() {
		err := object.Set(replication.PropLabel, replication.String(ent.Label()))
		if err == nil {
			err = object.Set(replication.PropName, replication.String(ent.Name()))
		}
		if err == nil {
			return
		}
		if !errors.Is(err, replication.ErrLocked) {
			e.logger.Warn("syncing label", "object_id", object.ID(), "error", err)
			return
		}
	}
	e.world.Quietly(func() { e.applyLabelAndName(object, actor) })
}

// syncFolder sends the actor's folder, or restores the server's when
// the object is locked.
func (e *Engine) syncFolder(actor scene.EntityID, object *replication.Object) {
	folder := e.world.Entity(actor).Folder()
	if !object.IsLocked() {
		if err := object.Set(replication.PropFolder, replication.String(folder)); err == nil {
			return
		}
	}
	server := object.Get(replication.PropFolder).Str
	e.world.Quietly(func() { e.world.SetFolder(actor, server) })
}

// DeleteEmptyFolders removes folders emptied by remote folder changes.
// Folders the user empties locally are left alone.
func (e *Engine) DeleteEmptyFolders() {
	if len(e.emptyFolders) == 0 {
		return
	}
	checks := e.emptyFolders
	e.emptyFolders = nil
	for _, check := range checks {
		if !e.folderInUse(check) {
			e.world.DeleteFolder(check.level, check.folder)
		}
	}
}

func (e *Engine) folderInUse(check folderCheck) bool {
	for _, actor := range e.world.Actors(check.level) {
		if folder := e.world.Entity(actor).Folder(); folder != "" && scene.IsFolderWithin(folder, check.folder) {
			return true
		}
	}
	return false
}

// OnPropertyChange applies a remote property write to an actor.
func (e *Engine) OnPropertyChange(object *replication.Object, key string) {
	actor := e.registry.Resolve(object)
	if actor == scene.NoEntity {
		return
	}
	ent := e.world.Entity(actor)
	switch key {
	case replication.PropName:
		e.world.Quietly(func() { e.world.Rename(actor, object.Get(key).Str) })
	case replication.PropLabel:
		e.world.Quietly(func() { e.world.SetLabel(actor, object.Get(key).Str) })
	case replication.PropFolder:
		if old := ent.Folder(); old != "" {
			e.emptyFolders = append(e.emptyFolders, folderCheck{level: ent.Level(), folder: old})
		}
		e.world.Quietly(func() { e.world.SetFolder(actor, object.Get(key).Str) })
	case replication.PropClass:
	default:
		hostKey, ok := HostKey(key)
		if !ok {
			return
		}
		e.properties.ApplyProperty(object, actor, hostKey)
		if hostKey == "PolyFlags" && e.world.IsA(ent.Class(), scene.ClassBrush) {
			e.scheduleRebuild(ent.Level())
		}
	}
}
