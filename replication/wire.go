// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import "fmt"

// Messages exchanged between a Session and a server. Every message is
// CBOR encoded with lib/codec before it crosses the Transport.

type requestKind uint8

const (
	requestJoin requestKind = iota + 1
	requestLeave
	requestCreate
	requestDelete
	requestSet
	requestReparent
	requestLock
	requestUnlock
)

func (k requestKind) String() string {
	switch k {
	case requestJoin:
		return "join"
	case requestLeave:
		return "leave"
	case requestCreate:
		return "create"
	case requestDelete:
		return "delete"
	case requestSet:
		return "set"
	case requestReparent:
		return "reparent"
	case requestLock:
		return "lock"
	case requestUnlock:
		return "unlock"
	default:
		return fmt.Sprintf("request(%d)", uint8(k))
	}
}

type request struct {
	Kind       requestKind      `cbor:"kind"`
	Name       string           `cbor:"name,omitempty"`
	Object     ObjectID         `cbor:"object,omitempty"`
	Parent     ObjectID         `cbor:"parent,omitempty"`
	ChildIndex int              `cbor:"index,omitempty"`
	Objects    []objectSnapshot `cbor:"objects,omitempty"`
	Key        string           `cbor:"key,omitempty"`
	Value      Value            `cbor:"value"`
	Reason     string           `cbor:"reason,omitempty"`
}

type reply struct {
	Error   string     `cbor:"error,omitempty"`
	User    *User      `cbor:"user,omitempty"`
	IDs     []ObjectID `cbor:"ids,omitempty"`
	Granted bool       `cbor:"granted,omitempty"`
}

type eventKind uint8

const (
	eventUserJoined eventKind = iota + 1
	eventUserLeft
	eventCreate
	eventDelete
	// eventDeleteAck confirms a delete sent by the receiving session.
	eventDeleteAck
	// eventLock carries the new direct holder of an object. A zero
	// holder means the lock was released.
	eventLock
	eventParent
	eventProperty
)

type event struct {
	Kind       eventKind       `cbor:"kind"`
	User       *User           `cbor:"user,omitempty"`
	Object     *objectSnapshot `cbor:"object,omitempty"`
	ID         ObjectID        `cbor:"id,omitempty"`
	Parent     ObjectID        `cbor:"parent,omitempty"`
	ChildIndex int             `cbor:"index,omitempty"`
	Holder     UserID          `cbor:"holder"`
	Key        string          `cbor:"key,omitempty"`
	Value      Value           `cbor:"value"`
}

// objectSnapshot is an object subtree in transit. IDs are zero in create
// requests and assigned in events.
type objectSnapshot struct {
	ID         ObjectID         `cbor:"id,omitempty"`
	Type       ObjectType       `cbor:"type"`
	Properties Properties       `cbor:"props,omitempty"`
	Holder     UserID           `cbor:"holder"`
	Children   []objectSnapshot `cbor:"children,omitempty"`
}

// count returns the number of objects in the snapshot subtree.
func (s *objectSnapshot) count() int {
	n := 1
	for i := range s.Children {
		n += s.Children[i].count()
	}
	return n
}
