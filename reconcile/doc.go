// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile keeps the editor's world and the shared object tree
// in agreement.
//
// An [Engine] translates in both directions. Local world events (spawn,
// delete, attach, rename, folder and property edits, undo) are queued
// and turned into tree operations on the next tick. Remote tree changes
// arrive through the replication handlers and are applied to the world
// inside [scene.World.Quietly], so they never echo back as local
// events.
//
// Locks held by other users win every conflict. Local edits to a locked
// actor are reverted to the server state; a local delete of a locked
// actor is undone by recreating the actor from its object on the next
// tick. Remote creates are spread over frames by a per-frame time
// budget so a large join never stalls the editor.
//
// Each actor object has one child object per component. Components sit
// flat under the actor object; the root component carries is_root. An
// attached child actor's object lives under the parent actor's root
// component object.
package reconcile
