// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"time"

	"github.com/bureau-foundation/scenesync/scene"
)

// SyncMovedEntities sends the transforms of actors moved since the last
// tick.
func (e *Engine) SyncMovedEntities() {
	if len(e.moved) == 0 {
		return
	}
	moved := e.moved
	e.moved = nil
	for _, actor := range moved {
		e.components.syncTransforms(actor)
	}
}

// CollectGarbageIfNeeded reclaims actors destroyed by remote changes.
func (e *Engine) CollectGarbageIfNeeded() {
	if !e.collectGarbage {
		return
	}
	e.collectGarbage = false
	if !e.settings.Sync.CollectGarbage {
		return
	}
	collected := e.world.CollectGarbage()
	for actor := range e.remoteDeleted {
		if e.world.Entity(actor) == nil {
			delete(e.remoteDeleted, actor)
		}
	}
	e.logger.Debug("collected garbage", "actors", collected)
}

// MarkGeometryStale flags a level's scene geometry for a rebuild once
// the rebuild delay has passed.
func (e *Engine) MarkGeometryStale(level scene.EntityID) {
	e.scheduleRebuild(level)
}

func (e *Engine) scheduleRebuild(level scene.EntityID) {
	e.world.MarkNeedsRebuild(level)
	e.rebuildPending = true
	e.rebuildDelay = e.settings.Geometry.RebuildDelay
}

// RebuildGeometryIfNeeded counts down the rebuild delay by delta and
// rebuilds stale scene geometry when it runs out. Dragging a brush
// holds the countdown at zero so the rebuild runs right after the drag.
func (e *Engine) RebuildGeometryIfNeeded(delta time.Duration) {
	if !e.rebuildPending {
		return
	}
	if e.movingBrush {
		e.rebuildDelay = 0
		return
	}
	e.rebuildDelay -= delta
	if e.rebuildDelay >= 0 {
		return
	}
	e.rebuildPending = false
	e.world.RebuildGeometry()
}

// RebuildPending reports whether a scene geometry rebuild is scheduled.
func (e *Engine) RebuildPending() bool { return e.rebuildPending }
