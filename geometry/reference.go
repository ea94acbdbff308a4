// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"fmt"

	"github.com/bureau-foundation/scenesync/replication"
)

// RefKind is the tag of an encoded reference. Values are part of the blob
// format.
type RefKind uint8

const (
	// RefNull is an empty reference.
	RefNull RefKind = 0
	// RefUnsynced points at something with no replicated object.
	RefUnsynced RefKind = 1
	// RefObject points at a replicated object by id.
	RefObject RefKind = 2
	// RefAsset points at an asset by path.
	RefAsset RefKind = 3
)

func (k RefKind) String() string {
	switch k {
	case RefNull:
		return "null"
	case RefUnsynced:
		return "unsynced"
	case RefObject:
		return "object"
	case RefAsset:
		return "asset"
	default:
		return fmt.Sprintf("ref(%d)", uint8(k))
	}
}

// Reference is a pointer as it appears inside a blob.
type Reference struct {
	Kind   RefKind
	Object replication.ObjectID
	Path   string
}

// Resolver converts brush pointers between local and wire form.
type Resolver interface {
	// Reference returns the wire form of a non-zero local brush. A brush
	// without a replicated object returns a RefUnsynced reference.
	Reference(local LocalRef) Reference

	// Resolve returns the local brush for a RefObject reference. ok is
	// false when the object has no local entity.
	Resolve(ref Reference) (local LocalRef, ok bool)
}
