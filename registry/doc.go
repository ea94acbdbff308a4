// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry maps local scene entities to replicated objects.
//
// The mapping is non-owning in both directions: unbinding an entry never
// destroys the entity or the object. This lets an object outlive the
// entity it was bound to, so a recreated entity can reuse the object's id
// and every reference that other objects hold to it stays valid.
//
// A Registry lives as long as one connected session. It is not safe for
// concurrent use; all calls happen on the editor's frame thread.
package registry
