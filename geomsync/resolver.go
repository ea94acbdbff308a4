// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package geomsync

import (
	"github.com/bureau-foundation/scenesync/geometry"
	"github.com/bureau-foundation/scenesync/registry"
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

var _ geometry.Resolver = (*Resolver)(nil)

// Resolver maps brush pointers inside geometry blobs through the
// engine's registry. A brush is written as its actor object's id.
type Resolver struct {
	session  *replication.Session
	registry *registry.Registry
}

// NewResolver returns a resolver over session and reg.
func NewResolver(session *replication.Session, reg *registry.Registry) *Resolver {
	return &Resolver{session: session, registry: reg}
}

func (r *Resolver) Reference(local geometry.LocalRef) geometry.Reference {
	object := r.registry.Lookup(scene.EntityFromLocalRef(local))
	if object == nil || !object.IsSyncing() {
		return geometry.Reference{Kind: geometry.RefUnsynced}
	}
	return geometry.Reference{Kind: geometry.RefObject, Object: object.ID()}
}

func (r *Resolver) Resolve(ref geometry.Reference) (geometry.LocalRef, bool) {
	object := r.session.Object(ref.Object)
	if object == nil {
		return 0, false
	}
	entity := r.registry.Resolve(object)
	if entity == scene.NoEntity {
		return 0, false
	}
	return entity.LocalRef(), true
}
