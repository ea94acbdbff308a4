// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scene is a headless model of the host editor's world: levels,
// actors and their components, selection, folders and brush geometry.
//
// The world owns every entity. Other packages hold only [EntityID]
// values and look entities up when they need them, so destroying an
// entity never invalidates state elsewhere beyond making lookups fail.
//
// Mutations emit [Event] values to subscribers synchronously, in the
// order they happen. Changes made inside [World.Quietly] emit nothing;
// the replication engine uses it when applying server state so its own
// writes do not echo back as local edits.
//
// A World is not safe for concurrent use. The editor runs on a single
// thread and so does everything that subscribes to it.
package scene
