// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tick drives reconciliation from the editor's frame loop.
//
// A [Scheduler] runs named phases in a fixed order once per frame. A
// [Client] wires one editor world to a replication session: it builds
// the reconcile engine and the geometry coordinator, starts them, and
// registers the frame phases in the order the engine depends on
// (remote changes first, then uploads, selection locks, transforms,
// reverts, recreates, parent sync, cleanup, geometry and the scene
// rebuild).
package tick
