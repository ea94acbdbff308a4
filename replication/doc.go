// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replication is the object-graph replication service the sync
// engine runs on.
//
// The shared scene is a tree of [Object] values held authoritatively by a
// server. Each connected editor has a [Session] holding its own replica of
// the tree. Local mutations (create, delete, property writes, reparent,
// lock requests) go through the session to the server; remote mutations
// arrive as events that [Session.Receive] applies to the replica and
// dispatches to a per-type [Handler].
//
// Locks gate writes. A user holding a lock on an object makes that object
// and its descendants fully locked for everyone else, and the object's
// ancestors (below the root) partially locked. A partially locked object
// accepts new children but not property writes. The server rejects writes
// that violate a lock and sends the writer a correction with the server
// value, so the lock holder always wins.
//
// [MemoryServer] is the in-process authoritative server used by tests and
// the simulator. Every request, reply and event crossing between a
// session and the server is CBOR encoded (see lib/codec), so replicas
// never share state by reference.
//
// Sessions are driven from a single goroutine (the editor frame). The
// server may be shared by sessions on different goroutines.
package replication
