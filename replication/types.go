// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ObjectID identifies an object on the server. IDs are assigned by the
// server at creation and never reused. Zero means "no object".
type ObjectID uint32

// NoObject is the zero ObjectID.
const NoObject ObjectID = 0

// ObjectType tags what an object represents. Handlers are registered per
// type.
type ObjectType uint8

const (
	TypeActor ObjectType = iota + 1
	TypeComponent
	TypeModel
	TypeLevel
	TypeUObject
	TypeBlueprint
)

func (t ObjectType) String() string {
	switch t {
	case TypeActor:
		return "actor"
	case TypeComponent:
		return "component"
	case TypeModel:
		return "model"
	case TypeLevel:
		return "level"
	case TypeUObject:
		return "uobject"
	case TypeBlueprint:
		return "blueprint"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// IsScope reports whether objects of this type terminate an ancestry
// chain. Levels hold placed actors; blueprints hold asset-category
// actors built from class defaults.
func (t ObjectType) IsScope() bool {
	return t == TypeLevel || t == TypeBlueprint
}

// LockKind is an object's lock state as seen by the local user.
type LockKind uint8

const (
	Unlocked LockKind = iota
	// PartiallyLocked objects have a descendant held by another user.
	// New children may be added; properties may not be written.
	PartiallyLocked
	// FullyLocked objects are held by another user directly or through
	// an ancestor. No local change may be sent.
	FullyLocked
)

func (k LockKind) String() string {
	switch k {
	case Unlocked:
		return "unlocked"
	case PartiallyLocked:
		return "partially-locked"
	case FullyLocked:
		return "fully-locked"
	default:
		return fmt.Sprintf("lock(%d)", uint8(k))
	}
}

// UserID identifies a connected user. The server mints one per join.
type UserID = ulid.ULID

// User is a participant in the session.
type User struct {
	ID    UserID `cbor:"id"`
	Name  string `cbor:"name"`
	Color string `cbor:"color"`
}

func (u User) String() string {
	return u.Name + "(" + u.ID.String() + ")"
}
