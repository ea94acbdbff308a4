// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package geomsync

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/scenesync/geometry"
	"github.com/bureau-foundation/scenesync/lib/binhash"
	"github.com/bureau-foundation/scenesync/lib/codec"
	"github.com/bureau-foundation/scenesync/lockvisual"
	"github.com/bureau-foundation/scenesync/reconcile"
	"github.com/bureau-foundation/scenesync/registry"
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// Config configures a Coordinator. Engine is required.
type Config struct {
	Engine *reconcile.Engine

	// Logger defaults to the engine's logger.
	Logger *slog.Logger
}

// Coordinator keeps brush models and their model objects in agreement.
// Like the engine it is driven from the frame loop and is not safe for
// concurrent use.
type Coordinator struct {
	engine    *reconcile.Engine
	world     *scene.World
	codec     *geometry.Codec
	logger    *slog.Logger
	debounce  time.Duration
	indicator *lockvisual.Indicator

	// models binds brush actors to their model objects. The engine's
	// registry already binds the brush to its actor object.
	models *registry.Registry

	// published holds the digest of the blob last written to or read
	// from each model object.
	published map[*replication.Object]binhash.Digest

	dirty      []scene.EntityID
	countdown  time.Duration
	refreshing []scene.EntityID

	unsubscribe func()
}

var _ replication.Handler = (*Coordinator)(nil)

// New returns a coordinator and registers it with the engine. Call it
// before the engine's Start so brushes in the initial tree get their
// models.
func New(cfg Config) (*Coordinator, error) {
	e := cfg.Engine
	if e == nil {
		return nil, errors.New("geomsync: engine is required")
	}
	settings := e.Settings().Geometry
	compression, err := codec.ParseCompression(settings.Compression)
	if err != nil {
		return nil, fmt.Errorf("geomsync: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = e.Logger()
	}
	c := &Coordinator{
		engine: e,
		world:  e.World(),
		codec: geometry.NewCodec(geometry.CodecConfig{
			Compression: compression,
			Resolver:    NewResolver(e.Session(), e.Registry()),
			Logger:      logger,
		}),
		logger:    logger,
		debounce:  settings.Debounce,
		indicator: e.Indicator(),
		models:    registry.New(),
		published: make(map[*replication.Object]binhash.Digest),
	}

	e.RegisterHandler(replication.TypeModel, c)
	e.RegisterEntityInitializer(scene.ClassBrush, c.initializeBrush)
	e.RegisterObjectInitializer(scene.ClassBrush, c.addModelObject)
	e.RegisterUploadListener(scene.ClassBrush, c.onUploaded)
	e.OnDeselect(c.onDeselect)
	e.Registry().OnUnbind(replication.TypeActor, c.onActorUnbound)
	c.unsubscribe = c.world.Subscribe(c.onEvent)
	return c, nil
}

// Close stops listening to the world.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Model returns the model object bound to brush, or nil.
func (c *Coordinator) Model(brush scene.EntityID) *replication.Object {
	return c.models.Lookup(brush)
}

// IsDirty reports whether brush has local edits waiting for the
// debounce.
func (c *Coordinator) IsDirty(brush scene.EntityID) bool {
	return slices.Contains(c.dirty, brush)
}

// initializeBrush gives a brush spawned for a remote object an empty
// model for the remote blob to land in.
func (c *Coordinator) initializeBrush(_ *replication.Object, brush scene.EntityID) {
	if ent := c.world.Entity(brush); ent != nil && ent.Model() == nil {
		c.world.SetModel(brush, geometry.NewEmpty())
	}
}

// addModelObject adds the model child to the object of a local brush
// about to be uploaded. The brush's own object has no id yet, so the
// blob carries its self references as unsynced until onUploaded
// rewrites it.
func (c *Coordinator) addModelObject(object *replication.Object, brush scene.EntityID) {
	ent := c.world.Entity(brush)
	if ent == nil {
		return
	}
	if ent.Model() == nil {
		c.world.SetModel(brush, geometry.NewEmpty())
	}
	blob, err := c.codec.Encode(ent.Model())
	if err != nil {
		c.logger.Error("encoding brush geometry", "entity", ent.String(), "error", err)
		return
	}
	model := replication.NewObject(replication.TypeModel, replication.Properties{
		replication.PropGeometry: replication.Bytes(blob),
	})
	if err := object.AddChild(model, -1); err != nil {
		c.logger.Warn("adding model object", "entity", ent.String(), "error", err)
		return
	}
	c.models.UnbindEntity(brush)
	if err := c.models.Bind(brush, model); err != nil {
		c.logger.Warn("binding model object", "entity", ent.String(), "error", err)
		return
	}
	c.published[model] = binhash.Sum(binhash.GeometryDomain, blob)
}

// onUploaded republishes the blob of a brush that just reached the
// server, now that its self references resolve to its object id.
func (c *Coordinator) onUploaded(_ *replication.Object, brush scene.EntityID) {
	c.sync(brush)
}

func (c *Coordinator) onActorUnbound(_ *replication.Object, actor scene.EntityID) {
	if model := c.models.UnbindEntity(actor); model != nil {
		delete(c.published, model)
	}
	c.dirty = slices.DeleteFunc(c.dirty, func(id scene.EntityID) bool { return id == actor })
}

func (c *Coordinator) onEvent(ev scene.Event) {
	switch ev.Kind {
	case scene.EventGeometryModified:
		ent := c.world.Entity(ev.Entity)
		if ent != nil && (ent.IsSelected() || ev.Transaction == scene.TransactionCreateActors) {
			c.markDirty(ev.Entity)
		}
	case scene.EventLevelDirtied:
		// Surface alignment edits arrive as a level-wide change with no
		// transaction.
		if ev.Transaction != scene.TransactionNone {
			return
		}
		for _, actor := range c.world.Selection() {
			if ent := c.world.Entity(actor); ent.Level() == ev.Entity && c.world.IsA(ent.Class(), scene.ClassBrush) {
				c.markDirty(actor)
			}
		}
	}
}

func (c *Coordinator) markDirty(brush scene.EntityID) {
	if c.models.Lookup(brush) == nil {
		return
	}
	if !slices.Contains(c.dirty, brush) {
		c.dirty = append(c.dirty, brush)
	}
	c.countdown = c.debounce
}

// onDeselect publishes a brush's pending edits while the user still holds
// its lock.
func (c *Coordinator) onDeselect(actor scene.EntityID) {
	if !c.IsDirty(actor) {
		return
	}
	c.dirty = slices.DeleteFunc(c.dirty, func(id scene.EntityID) bool { return id == actor })
	c.sync(actor)
}

// Tick advances the debounce by delta and syncs dirty brushes once it
// runs out. Lock meshes of brushes that took remote geometry are
// refreshed after the scene rebuild that geometry scheduled.
func (c *Coordinator) Tick(delta time.Duration) {
	if len(c.refreshing) > 0 && !c.engine.RebuildPending() {
		for _, brush := range c.refreshing {
			c.indicator.RefreshModelMesh(brush)
		}
		c.refreshing = nil
	}
	if len(c.dirty) == 0 {
		return
	}
	c.countdown -= delta
	if c.countdown > 0 {
		return
	}
	dirty := c.dirty
	c.dirty = nil
	for _, brush := range dirty {
		c.sync(brush)
	}
}

// sync publishes the brush's model, or puts the server's model back when
// another user holds the lock.
func (c *Coordinator) sync(brush scene.EntityID) {
	object := c.models.Lookup(brush)
	ent := c.world.Entity(brush)
	if object == nil || !object.IsSyncing() || ent == nil || ent.Model() == nil {
		return
	}
	if object.IsLocked() {
		c.apply(brush, object)
		return
	}
	blob, err := c.codec.Encode(ent.Model())
	if err != nil {
		c.logger.Error("encoding brush geometry", "entity", ent.String(), "error", err)
		return
	}
	digest := binhash.Sum(binhash.GeometryDomain, blob)
	if digest == c.published[object] {
		return
	}
	if err := object.Set(replication.PropGeometry, replication.Bytes(blob)); err != nil {
		if errors.Is(err, replication.ErrLocked) {
			c.apply(brush, object)
			return
		}
		c.logger.Warn("publishing brush geometry", "entity", ent.String(), "object_id", object.ID(), "error", err)
		return
	}
	c.published[object] = digest
	c.logger.Debug("published brush geometry",
		"entity", ent.String(), "bytes", len(blob), "digest", digest.Short())
}

// apply installs the model object's blob on brush and schedules the
// scene rebuild it needs.
func (c *Coordinator) apply(brush scene.EntityID, object *replication.Object) {
	ent := c.world.Entity(brush)
	blob := object.Get(replication.PropGeometry).Bytes
	if ent == nil || len(blob) == 0 {
		return
	}
	model := geometry.NewEmpty()
	if current := ent.Model(); current != nil {
		model = current.Clone()
	}
	if err := c.codec.DecodeInto(blob, model); err != nil {
		c.logger.Warn("decoding brush geometry", "entity", ent.String(), "object_id", object.ID(), "error", err)
		return
	}
	if owner := brush.LocalRef(); model.HasInvalidSurfaces(owner) {
		model.SetOwner(owner)
	}
	c.world.SetModel(brush, model)
	c.published[object] = binhash.Sum(binhash.GeometryDomain, blob)
	c.engine.MarkGeometryStale(ent.Level())
	if ent.LockLocation() && !slices.Contains(c.refreshing, brush) {
		c.refreshing = append(c.refreshing, brush)
	}
}

// OnCreate binds a model object to its brush and applies its geometry.
func (c *Coordinator) OnCreate(object *replication.Object, _ int) {
	brush := c.engine.Registry().Resolve(object.Ancestor(replication.TypeActor))
	if brush == scene.NoEntity {
		return
	}
	if bound := c.models.Resolve(object); bound == brush {
		c.apply(brush, object)
		return
	}
	if stale := c.models.UnbindEntity(brush); stale != nil {
		delete(c.published, stale)
	}
	if err := c.models.Bind(brush, object); err != nil {
		c.logger.Warn("binding model object", "object_id", object.ID(), "error", err)
		return
	}
	c.apply(brush, object)
}

func (c *Coordinator) OnDelete(object *replication.Object) {
	c.models.Unbind(object)
	delete(c.published, object)
}

// OnPropertyChange applies a remote geometry write right away, without
// waiting for the debounce.
func (c *Coordinator) OnPropertyChange(object *replication.Object, key string) {
	if key != replication.PropGeometry {
		return
	}
	if brush := c.models.Resolve(object); brush != scene.NoEntity {
		c.apply(brush, object)
	}
}

func (c *Coordinator) OnLock(*replication.Object) {}
func (c *Coordinator) OnUnlock(*replication.Object) {}
func (c *Coordinator) OnLockOwnerChange(*replication.Object) {}
func (c *Coordinator) OnParentChange(*replication.Object, int) {}
