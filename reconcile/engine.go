// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/scenesync/lib/clock"
	"github.com/bureau-foundation/scenesync/lib/config"
	"github.com/bureau-foundation/scenesync/lockvisual"
	"github.com/bureau-foundation/scenesync/registry"
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// Config configures an Engine. World and Session are required.
type Config struct {
	World   *scene.World
	Session *replication.Session

	// Registry defaults to an empty registry.
	Registry *registry.Registry

	// Indicator defaults to one built from Settings.Locks.
	Indicator *lockvisual.Indicator

	// Properties defaults to a [HostPropertyCodec].
	Properties PropertyCodec

	// Clock drives the per-frame create budget. Defaults to the real
	// clock.
	Clock clock.Clock

	// Settings defaults to config.Default().
	Settings *config.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Initializer runs for an entity of a registered class and its object.
type Initializer func(object *replication.Object, entity scene.EntityID)

// LockStateListener is told an actor's lock state after every change.
// Holder is nil unless the actor is fully locked.
type LockStateListener func(actor scene.EntityID, kind replication.LockKind, holder *replication.User)

type classInitializer struct {
	class string
	fn    Initializer
}

type folderCheck struct {
	level  scene.EntityID
	folder string
}

// Engine reconciles one world with one session. It is driven from the
// frame loop and is not safe for concurrent use.
type Engine struct {
	world      *scene.World
	session    *replication.Session
	registry   *registry.Registry
	indicator  *lockvisual.Indicator
	properties PropertyCodec
	settings   *config.Config
	logger     *slog.Logger
	budget     *clock.Budget

	components *ComponentSync
	levels     *levelSync
	standIns   *StandIns
	handlers   map[replication.ObjectType]replication.Handler

	// Work queued by world events and drained by the tick phases.
	uploads       []scene.EntityID
	deferred      []*replication.Object
	recreate      []*replication.Object
	revertFolders []scene.EntityID
	parents       []scene.EntityID
	emptyFolders  []folderCheck
	moved         []scene.EntityID

	// selected holds the actors the engine has asked locks for, in
	// selection order.
	selected      map[scene.EntityID]*replication.Object
	selectedOrder []scene.EntityID

	moving         bool
	movingBrush    bool
	collectGarbage bool
	rebuildPending bool
	rebuildDelay   time.Duration
	numSynced      int

	// remoteDeleted holds actors destroyed because another user deleted
	// them. Restoring one by undo destroys it again.
	remoteDeleted map[scene.EntityID]bool

	entityInitializers []classInitializer
	objectInitializers []classInitializer
	uploadListeners    []classInitializer
	hiddenSyncTypes    map[string]bool
	lockListeners      []LockStateListener
	deselectListeners  []func(actor scene.EntityID)

	createBatch func(objects []*replication.Object, parent *replication.Object, childIndex int) error
	unsubscribe func()
	err         error
}

var _ replication.Handler = (*Engine)(nil)

// New returns an engine. Call Start to begin reconciling.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
	}
	indicator := cfg.Indicator
	if indicator == nil {
		indicator = lockvisual.New(lockvisual.Config{
			World:   cfg.World,
			Palette: lockvisual.NewPalette(settings.Locks),
			Logger:  logger,
		})
	}
	properties := cfg.Properties
	if properties == nil {
		properties = NewHostPropertyCodec(cfg.World, reg, logger)
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}

	e := &Engine{
		world:           cfg.World,
		session:         cfg.Session,
		registry:        reg,
		indicator:       indicator,
		properties:      properties,
		settings:        settings,
		logger:          logger,
		budget:          clock.NewBudget(c, settings.Sync.CreateBudget),
		standIns:        NewStandIns(),
		handlers:        make(map[replication.ObjectType]replication.Handler),
		selected:        make(map[scene.EntityID]*replication.Object),
		remoteDeleted:   make(map[scene.EntityID]bool),
		hiddenSyncTypes: make(map[string]bool),
	}
	e.components = &ComponentSync{engine: e}
	e.levels = &levelSync{engine: e}
	e.createBatch = cfg.Session.CreateBatch
	for _, class := range settings.Sync.HiddenSyncTypes {
		e.hiddenSyncTypes[class] = true
	}
	return e
}

// Start registers the engine's handlers, applies the current tree and
// uploads the local levels the server does not have yet.
func (e *Engine) Start() {
	if e.unsubscribe != nil {
		return
	}
	e.RegisterHandler(replication.TypeActor, e)
	e.RegisterHandler(replication.TypeComponent, e.components)
	e.RegisterHandler(replication.TypeLevel, e.levels)
	e.session.OnDeleteAcknowledged(e.onDeleteAcknowledged)
	e.unsubscribe = e.world.Subscribe(e.onEvent)

	e.budget.Reset()
	e.session.Receive()
	for _, level := range e.world.Levels() {
		if e.registry.Lookup(level) == nil {
			e.levels.upload(level)
		}
	}
	e.logger.Info("reconciliation started",
		"levels", len(e.world.Levels()), "objects", e.session.NumObjects())
}

// Close stops listening to the world. Bindings are kept.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Err returns the protocol error that ended the session, if any.
func (e *Engine) Err() error { return e.err }

func (e *Engine) World() *scene.World { return e.world }
func (e *Engine) Session() *replication.Session { return e.session }
func (e *Engine) Registry() *registry.Registry { return e.registry }
func (e *Engine) Indicator() *lockvisual.Indicator { return e.indicator }
func (e *Engine) Settings() *config.Config { return e.settings }
func (e *Engine) StandIns() *StandIns { return e.standIns }
func (e *Engine) Components() *ComponentSync { return e.components }
func (e *Engine) Properties() PropertyCodec { return e.properties }
func (e *Engine) Logger() *slog.Logger { return e.logger }
func (e *Engine) NumSyncedEntities() int { return e.numSynced }
func (e *Engine) PendingUploads() int { return len(e.uploads) }
func (e *Engine) DeferredCreates() int { return len(e.deferred) }
func (e *Engine) IsRecreating(o *replication.Object) bool { return slices.Contains(e.recreate, o) }

// RegisterHandler routes remote changes for objects of type t to h. The
// engine also calls h.OnCreate for objects of type t found under
// actors it creates.
func (e *Engine) RegisterHandler(t replication.ObjectType, h replication.Handler) {
	e.handlers[t] = h
	e.session.RegisterHandler(t, h)
}

// RegisterEntityInitializer runs fn after the engine spawns an entity
// whose class is class or derives from it.
func (e *Engine) RegisterEntityInitializer(class string, fn Initializer) {
	e.entityInitializers = append(e.entityInitializers, classInitializer{class: class, fn: fn})
}

// RegisterObjectInitializer runs fn after the engine builds the object
// for a local entity whose class is class or derives from it, before
// the object is uploaded.
func (e *Engine) RegisterObjectInitializer(class string, fn Initializer) {
	e.objectInitializers = append(e.objectInitializers, classInitializer{class: class, fn: fn})
}

// RegisterUploadListener runs fn after the object of a local entity
// whose class is class or derives from it has been created on the
// server. The object and its descendants are syncing when fn runs.
func (e *Engine) RegisterUploadListener(class string, fn Initializer) {
	e.uploadListeners = append(e.uploadListeners, classInitializer{class: class, fn: fn})
}

// RegisterHiddenSyncType makes a hidden class replicate.
func (e *Engine) RegisterHiddenSyncType(class string) {
	e.hiddenSyncTypes[class] = true
}

// OnLockStateChange adds a lock state listener.
func (e *Engine) OnLockStateChange(fn LockStateListener) {
	e.lockListeners = append(e.lockListeners, fn)
}

// OnDeselect adds a listener called when a locked actor leaves the
// selection, before its lock is released.
func (e *Engine) OnDeselect(fn func(actor scene.EntityID)) {
	e.deselectListeners = append(e.deselectListeners, fn)
}

// IsSyncable reports whether a live actor replicates.
func (e *Engine) IsSyncable(actor scene.EntityID) bool {
	return e.isSyncable(e.world.Entity(actor), false)
}

func (e *Engine) isSyncable(ent *scene.Entity, allowDestroyed bool) bool {
	if ent == nil || ent.Kind() != scene.KindActor || ent.IsTransient() || ent.Level() == scene.NoEntity {
		return false
	}
	if ent.IsDestroyed() && !allowDestroyed {
		return false
	}
	class, ok := e.world.ResolveClass(ent.Class())
	if !ok {
		return false
	}
	if class.Internal {
		return false
	}
	if class.Hidden && !e.isHiddenSyncType(class.Name) {
		return false
	}
	return true
}

func (e *Engine) isHiddenSyncType(class string) bool {
	for hidden := range e.hiddenSyncTypes {
		if e.world.IsA(class, hidden) {
			return true
		}
	}
	return false
}

func (e *Engine) onEvent(ev scene.Event) {
	switch ev.Kind {
	case scene.EventActorAdded:
		if e.IsSyncable(ev.Entity) {
			e.EnqueueUpload(ev.Entity)
		}
	case scene.EventActorDeleted:
		e.onActorDeleted(ev.Entity)
	case scene.EventAttached, scene.EventDetached:
		e.parents = appendUnique(e.parents, ev.Entity)
	case scene.EventFolderChanged:
		e.onFolderChanged(ev.Entity)
	case scene.EventLabelChanged:
		e.onLabelChanged(ev.Entity)
	case scene.EventActorMoved:
		if object := e.registry.Lookup(ev.Entity); object != nil && object.IsSyncing() {
			e.moved = appendUnique(e.moved, ev.Entity)
		}
	case scene.EventMoveStarted:
		e.moving = true
		if ent := e.world.Entity(ev.Entity); ent != nil {
			e.movingBrush = e.world.IsA(ent.Class(), scene.ClassBrush)
		}
	case scene.EventMoveEnded:
		e.moving = false
		e.movingBrush = false
		for _, actor := range e.selectedOrder {
			e.components.syncTransforms(actor)
		}
	case scene.EventUndoRedo:
		e.onUndoRedo(ev.Entity)
	case scene.EventLevelDirtied:
		if ev.Transaction == scene.TransactionSetBrushProperties {
			e.syncBrushProperties()
		}
	case scene.EventPropertyChanged:
		e.onPropertyChanged(ev.Entity, ev.Key)
	case scene.EventLevelAdded:
		e.levels.onLevelAdded(ev.Entity)
	case scene.EventLevelRemoved:
		e.levels.onLevelRemoved(ev.Entity)
	}
}

// EnqueueUpload queues a local actor for creation on the server. The
// actor is pinned until then so garbage collection keeps it.
func (e *Engine) EnqueueUpload(actor scene.EntityID) {
	if slices.Contains(e.uploads, actor) {
		return
	}
	e.uploads = append(e.uploads, actor)
	e.world.Pin(actor, true)
}

// syncBrushProperties sends the poly flags of selected brushes.
func (e *Engine) syncBrushProperties() {
	for _, actor := range e.selectedOrder {
		ent := e.world.Entity(actor)
		object := e.selected[actor]
		if ent == nil || !e.world.IsA(ent.Class(), scene.ClassBrush) || !object.IsSyncing() {
			continue
		}
		if err := e.properties.SyncProperty(object, actor, "PolyFlags"); err != nil {
			e.logger.Warn("syncing brush properties", "entity", ent.String(), "error", err)
		}
	}
}

func (e *Engine) onPropertyChanged(entity scene.EntityID, key string) {
	object := e.registry.Lookup(entity)
	if object == nil || !object.IsSyncing() {
		return
	}
	if object.IsLocked() {
		e.properties.ApplyProperty(object, entity, key)
		return
	}
	if err := e.properties.SyncProperty(object, entity, key); err != nil {
		e.logger.Warn("syncing property", "object_id", object.ID(), "key", key, "error", err)
		e.properties.ApplyProperty(object, entity, key)
	}
}

func (e *Engine) onDeleteAcknowledged(object *replication.Object) {
	for _, descendant := range object.SelfAndDescendants() {
		e.registry.Unbind(descendant)
	}
}

func (e *Engine) dispatchCreate(object *replication.Object) {
	if handler := e.handlers[object.Type()]; handler != nil {
		handler.OnCreate(object, object.ChildIndex())
	}
}

func (e *Engine) disconnect(err *ProtocolError) {
	e.err = err
	e.logger.Error("leaving session", "error", err, "object_id", err.Object, "name", err.Name)
	e.session.Leave(err.Error())
}

func (e *Engine) invokeLockStateChange(object *replication.Object, actor scene.EntityID) {
	kind := object.LockKind()
	var holder *replication.User
	if kind == replication.FullyLocked {
		holder = object.LockHolder()
	}
	for _, listener := range e.lockListeners {
		listener(actor, kind, holder)
	}
}

func appendUnique(list []scene.EntityID, id scene.EntityID) []scene.EntityID {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}
