// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockvisual shows which entities are locked by other users.
//
// A locked actor gets one transient decoration component per mesh
// component, coloured with its lock holder's material. Decorations never
// replicate and are destroyed again when the lock goes away. Brushes have
// no mesh components, so they get a single decoration on the root
// component that mirrors the brush model; it is refreshed after the
// scene geometry rebuilds.
package lockvisual
