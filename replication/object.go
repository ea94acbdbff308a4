// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"fmt"
	"slices"
)

// Object is one node of a session's replica of the shared tree.
//
// Objects built with [NewObject] are local until passed to
// [Session.CreateBatch]; until then Set and AddChild only change the
// local value and nothing is sent. Once syncing, mutations go through the
// owning session.
//
// Children are owned by their parent. The parent field is a back pointer
// and never keeps an object alive on its own.
type Object struct {
	session    *Session
	id         ObjectID
	objectType ObjectType
	properties Properties
	parent     *Object
	children   []*Object

	// holder is the user holding a lock on this object directly. The
	// zero UserID means nobody does.
	holder UserID

	syncing       bool
	deletePending bool
	lockRequested bool
}

// NewObject returns a local object that is not yet on the server.
func NewObject(objectType ObjectType, properties Properties) *Object {
	return &Object{
		objectType: objectType,
		properties: properties.Clone(),
	}
}

func (o *Object) ID() ObjectID { return o.id }
func (o *Object) Type() ObjectType { return o.objectType }
func (o *Object) Parent() *Object { return o.parent }
func (o *Object) Session() *Session { return o.session }
func (o *Object) IsSyncing() bool { return o.syncing }
func (o *Object) IsDeletePending() bool { return o.deletePending }

func (o *Object) String() string {
	return fmt.Sprintf("%s#%d", o.objectType, o.id)
}

// Get returns the value stored under key, or a null Value.
func (o *Object) Get(key string) Value {
	return o.properties[key]
}

// Has reports whether key holds a non-null value.
func (o *Object) Has(key string) bool {
	_, ok := o.properties[key]
	return ok
}

// Properties returns a copy of the property dictionary.
func (o *Object) Properties() Properties {
	return o.properties.Clone()
}

// Children returns the ordered children. The slice is a copy.
func (o *Object) Children() []*Object {
	return slices.Clone(o.children)
}

// ChildIndex returns o's position among its parent's children, or -1 for
// roots.
func (o *Object) ChildIndex() int {
	if o.parent == nil {
		return -1
	}
	return slices.Index(o.parent.children, o)
}

// Root returns the topmost ancestor of o, or o itself.
func (o *Object) Root() *Object {
	root := o
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Ancestor returns the nearest ancestor (excluding o) whose type is one
// of types, or nil.
func (o *Object) Ancestor(types ...ObjectType) *Object {
	for current := o.parent; current != nil; current = current.parent {
		if slices.Contains(types, current.objectType) {
			return current
		}
	}
	return nil
}

// IsDescendantOf reports whether other is a strict ancestor of o.
func (o *Object) IsDescendantOf(other *Object) bool {
	for current := o.parent; current != nil; current = current.parent {
		if current == other {
			return true
		}
	}
	return false
}

// SelfAndDescendants returns o followed by all of its descendants in
// depth-first preorder.
func (o *Object) SelfAndDescendants() []*Object {
	var result []*Object
	var walk func(*Object)
	walk = func(current *Object) {
		result = append(result, current)
		for _, child := range current.children {
			walk(child)
		}
	}
	walk(o)
	return result
}

// LockKind returns o's lock state for the local user.
func (o *Object) LockKind() LockKind {
	if o.session == nil {
		return Unlocked
	}
	self := o.session.user.ID
	for current := o; current != nil; current = current.parent {
		if current.heldByOther(self) {
			return FullyLocked
		}
	}
	// Roots are never partially locked.
	if o.parent == nil {
		return Unlocked
	}
	for _, descendant := range o.SelfAndDescendants()[1:] {
		if descendant.heldByOther(self) {
			return PartiallyLocked
		}
	}
	return Unlocked
}

// IsLocked reports whether another user holds a lock on o, an ancestor
// of o, or a descendant of o.
func (o *Object) IsLocked() bool { return o.LockKind() != Unlocked }

func (o *Object) IsFullyLocked() bool { return o.LockKind() == FullyLocked }
func (o *Object) IsPartiallyLocked() bool { return o.LockKind() == PartiallyLocked }

// HasLock reports whether the local user holds a lock on o directly.
func (o *Object) HasLock() bool {
	return o.session != nil && o.holder == o.session.user.ID
}

// IsLockPending reports whether the local user has requested a lock on o
// that the server has queued.
func (o *Object) IsLockPending() bool { return o.lockRequested }

// LockHolder returns the user whose lock is in effect on o: the nearest
// direct holder on o or an ancestor. Returns nil when unlocked.
func (o *Object) LockHolder() *User {
	if o.session == nil {
		return nil
	}
	holder := o.effectiveHolder()
	if holder == (UserID{}) {
		return nil
	}
	return o.session.userByID(holder)
}

func (o *Object) effectiveHolder() UserID {
	for current := o; current != nil; current = current.parent {
		if current.holder != (UserID{}) {
			return current.holder
		}
	}
	return UserID{}
}

func (o *Object) heldByOther(self UserID) bool {
	return o.holder != (UserID{}) && o.holder != self
}

// Set writes a property. A null value removes the key. On a syncing
// object the write is sent to the server unless the value is unchanged;
// writes to a locked object return ErrLocked and change nothing.
func (o *Object) Set(key string, value Value) error {
	if !o.syncing {
		o.setLocal(key, value)
		return nil
	}
	return o.session.set(o, key, value)
}

func (o *Object) setLocal(key string, value Value) {
	if value.IsNull() {
		delete(o.properties, key)
		return
	}
	o.properties[key] = value.Clone()
}

// AddChild attaches child under o at index (-1 appends). A child that
// already has a parent is moved. When both objects are syncing this is a
// reparent request to the server.
func (o *Object) AddChild(child *Object, index int) error {
	if child == o || o.IsDescendantOf(child) {
		return fmt.Errorf("replication: cannot attach %v under its own descendant %v", child, o)
	}
	if o.syncing != child.syncing {
		return fmt.Errorf("replication: attach %v under %v: %w", child, o, ErrNotSyncing)
	}
	if !o.syncing {
		attach(child, o, index)
		return nil
	}
	return o.session.reparent(child, o, index)
}

// RemoveChild detaches a child of a local object. Syncing objects are
// moved with AddChild or removed with Session.Delete instead.
func (o *Object) RemoveChild(child *Object) error {
	if o.syncing {
		return fmt.Errorf("replication: remove child of %v: %w", o, ErrAlreadySyncing)
	}
	if child.parent != o {
		return nil
	}
	detach(child)
	return nil
}

// RequestLock asks the server for a lock on o. If another user holds a
// conflicting lock the request is queued and granted later.
func (o *Object) RequestLock() error {
	if !o.syncing {
		return fmt.Errorf("replication: lock %v: %w", o, ErrNotSyncing)
	}
	return o.session.requestLock(o)
}

// ReleaseLock releases a held lock or withdraws a queued request.
func (o *Object) ReleaseLock() error {
	if !o.syncing {
		return nil
	}
	return o.session.releaseLock(o)
}

// attach inserts child under parent at index, detaching it from any
// previous parent. Out-of-range indexes append.
func attach(child, parent *Object, index int) {
	detach(child)
	child.parent = parent
	if index < 0 || index > len(parent.children) {
		parent.children = append(parent.children, child)
		return
	}
	parent.children = slices.Insert(parent.children, index, child)
}

func detach(child *Object) {
	if child.parent == nil {
		return
	}
	siblings := child.parent.children
	if i := slices.Index(siblings, child); i >= 0 {
		child.parent.children = slices.Delete(siblings, i, i+1)
	}
	child.parent = nil
}
