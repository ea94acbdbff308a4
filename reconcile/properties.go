// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bureau-foundation/scenesync/registry"
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

// PropertyCodec moves an entity's generic host properties to and from
// object properties. Keys are host property names; the codec decides
// how they are stored on the object.
type PropertyCodec interface {
	// CreateProperties writes entity's host properties into the
	// properties of a new object.
	CreateProperties(entity scene.EntityID, properties replication.Properties)

	// ApplyProperties makes entity's host properties match object.
	ApplyProperties(object *replication.Object, entity scene.EntityID)

	// ApplyProperty copies one host property from object to entity.
	ApplyProperty(object *replication.Object, entity scene.EntityID, key string)

	// SetReferences points each referencing property at entity.
	SetReferences(entity scene.EntityID, references []replication.Reference)

	// SyncProperty sends one host property of entity to object.
	SyncProperty(object *replication.Object, entity scene.EntityID, key string) error

	// SendPropertyChanges sends every host property of entity that
	// differs from object.
	SendPropertyChanges(object *replication.Object, entity scene.EntityID) error
}

// hostPrefix namespaces host properties on objects so they never clash
// with the keys the engine itself writes.
const hostPrefix = "host."

// ObjectKey returns the object property key of a host property.
func ObjectKey(hostKey string) string { return hostPrefix + hostKey }

// HostKey returns the host property name stored under an object key.
func HostKey(objectKey string) (string, bool) {
	return strings.CutPrefix(objectKey, hostPrefix)
}

var _ PropertyCodec = (*HostPropertyCodec)(nil)

// HostPropertyCodec is the default PropertyCodec. It stores string,
// bool, int64, []float32 and []byte values directly. EntityID values
// become references to the entity's object, or unsynced when the
// entity has no syncing object.
type HostPropertyCodec struct {
	world    *scene.World
	registry *registry.Registry
	logger   *slog.Logger
}

// NewHostPropertyCodec returns a codec resolving entity references
// through reg. A nil logger uses slog.Default().
func NewHostPropertyCodec(world *scene.World, reg *registry.Registry, logger *slog.Logger) *HostPropertyCodec {
	if logger == nil {
		logger = slog.Default()
	}
	return &HostPropertyCodec{world: world, registry: reg, logger: logger}
}

func (c *HostPropertyCodec) CreateProperties(entity scene.EntityID, properties replication.Properties) {
	e := c.world.Entity(entity)
	if e == nil {
		return
	}
	for key, value := range e.Properties() {
		converted, err := c.toValue(value)
		if err != nil {
			c.logger.Warn("skipping host property", "entity", e.String(), "key", key, "error", err)
			continue
		}
		properties[ObjectKey(key)] = converted
	}
}

func (c *HostPropertyCodec) ApplyProperties(object *replication.Object, entity scene.EntityID) {
	e := c.world.Entity(entity)
	if e == nil {
		return
	}
	local := e.Properties()
	remote := make(map[string]bool)
	for _, objectKey := range object.Properties().Keys() {
		key, ok := HostKey(objectKey)
		if !ok {
			continue
		}
		remote[key] = true
		c.ApplyProperty(object, entity, key)
	}
	c.world.Quietly(func() {
		for key := range local {
			if !remote[key] {
				c.world.SetProperty(entity, key, nil)
			}
		}
	})
}

func (c *HostPropertyCodec) ApplyProperty(object *replication.Object, entity scene.EntityID, key string) {
	value := object.Get(ObjectKey(key))
	if value.IsUnsynced() {
		return
	}
	local, err := c.fromValue(object, value)
	if err != nil {
		c.logger.Warn("ignoring host property", "object_id", object.ID(), "key", key, "error", err)
		return
	}
	c.world.Quietly(func() { c.world.SetProperty(entity, key, local) })
}

func (c *HostPropertyCodec) SetReferences(entity scene.EntityID, references []replication.Reference) {
	c.world.Quietly(func() {
		for _, reference := range references {
			key, ok := HostKey(reference.Key)
			if !ok {
				continue
			}
			if source := c.registry.Resolve(reference.Object); source != scene.NoEntity {
				c.world.SetProperty(source, key, entity)
			}
		}
	})
}

func (c *HostPropertyCodec) SyncProperty(object *replication.Object, entity scene.EntityID, key string) error {
	e := c.world.Entity(entity)
	if e == nil {
		return nil
	}
	local, ok := e.Property(key)
	if !ok {
		return object.Set(ObjectKey(key), replication.Value{})
	}
	value, err := c.toValue(local)
	if err != nil {
		return fmt.Errorf("syncing %s on %s: %w", key, e, err)
	}
	return object.Set(ObjectKey(key), value)
}

func (c *HostPropertyCodec) SendPropertyChanges(object *replication.Object, entity scene.EntityID) error {
	e := c.world.Entity(entity)
	if e == nil {
		return nil
	}
	local := e.Properties()
	keys := make([]string, 0, len(local))
	for key := range local {
		keys = append(keys, key)
	}
	for _, objectKey := range object.Properties().Keys() {
		if key, ok := HostKey(objectKey); ok {
			if _, present := local[key]; !present {
				keys = append(keys, key)
			}
		}
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := c.SyncProperty(object, entity, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *HostPropertyCodec) toValue(local any) (replication.Value, error) {
	switch v := local.(type) {
	case string:
		return replication.String(v), nil
	case bool:
		return replication.Bool(v), nil
	case int64:
		return replication.Int(v), nil
	case int:
		return replication.Int(int64(v)), nil
	case []float32:
		return replication.Floats(v...), nil
	case []byte:
		return replication.Bytes(v), nil
	case scene.EntityID:
		if object := c.registry.Lookup(v); object != nil && object.IsSyncing() {
			return replication.Ref(object.ID()), nil
		}
		return replication.Unsynced(), nil
	default:
		return replication.Value{}, fmt.Errorf("unsupported host property type %T", local)
	}
}

func (c *HostPropertyCodec) fromValue(object *replication.Object, value replication.Value) (any, error) {
	switch value.Kind {
	case replication.KindNull:
		return nil, nil
	case replication.KindString:
		return value.Str, nil
	case replication.KindBool:
		return value.Bool, nil
	case replication.KindInt:
		return value.Int, nil
	case replication.KindFloats:
		return slices.Clone(value.Floats), nil
	case replication.KindBytes:
		return slices.Clone(value.Bytes), nil
	case replication.KindRef:
		target := object.Session().Object(value.Ref)
		if target == nil {
			return scene.NoEntity, nil
		}
		return c.registry.Resolve(target), nil
	default:
		return nil, fmt.Errorf("unsupported value kind %s", value.Kind)
	}
}
