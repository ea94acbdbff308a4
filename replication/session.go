// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bureau-foundation/scenesync/lib/codec"
)

// Handler receives remote changes to objects of one type. Calls happen
// inside [Session.Receive], after the replica has been updated.
type Handler interface {
	// OnCreate is called for the root of each remotely created subtree.
	OnCreate(object *Object, childIndex int)

	// OnDelete is called before a remotely deleted subtree is removed
	// from the replica, so its children are still reachable.
	OnDelete(object *Object)

	// OnLock is called when an object becomes locked for the local user.
	OnLock(object *Object)

	// OnUnlock is called when an object stops being locked for the
	// local user.
	OnUnlock(object *Object)

	// OnLockOwnerChange is called when an object stays locked but the
	// holder or lock kind in effect changes.
	OnLockOwnerChange(object *Object)

	// OnParentChange is called after a remote reparent. Parent may be
	// nil if the object was moved to the root.
	OnParentChange(object *Object, childIndex int)

	// OnPropertyChange is called after a remote write to key. Corrections
	// for rejected local writes arrive this way too.
	OnPropertyChange(object *Object, key string)
}

// Reference is a property on one object whose value points at another.
type Reference struct {
	Object *Object
	Key    string
}

// SessionConfig configures a Session.
type SessionConfig struct {
	// Name is the display name announced to other users.
	Name string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is one user's connection to the shared tree. It is not safe
// for concurrent use.
type Session struct {
	transport Transport
	logger    *slog.Logger

	user  User
	users map[UserID]User

	objects  map[ObjectID]*Object
	roots    []*Object
	handlers map[ObjectType]Handler

	deleteAckListeners []func(*Object)

	disconnected bool
	reason       string
}

// Join announces a new user over transport and returns the connected
// session. The current tree arrives as create events on the first
// Receive.
func Join(transport Transport, config SessionConfig) (*Session, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	session := &Session{
		transport: transport,
		logger:    logger,
		users:     make(map[UserID]User),
		objects:   make(map[ObjectID]*Object),
		handlers:  make(map[ObjectType]Handler),
	}

	var response reply
	if err := session.call(request{Kind: requestJoin, Name: config.Name}, &response); err != nil {
		return nil, fmt.Errorf("joining session: %w", err)
	}
	if response.User == nil {
		return nil, fmt.Errorf("joining session: reply carries no user")
	}
	session.user = *response.User
	session.users[session.user.ID] = session.user
	session.logger = logger.With("user", session.user.Name)
	return session, nil
}

// User returns the local user.
func (s *Session) User() User { return s.user }

// Users returns every connected user in join order.
func (s *Session) Users() []User {
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b User) int { return a.ID.Compare(b.ID) })
	return users
}

func (s *Session) userByID(id UserID) *User {
	user, ok := s.users[id]
	if !ok {
		// Holder left before its release reached us.
		return &User{ID: id}
	}
	return &user
}

// Object returns the syncing object with the given id, or nil.
func (s *Session) Object(id ObjectID) *Object { return s.objects[id] }

// Roots returns the objects without a parent, in creation order.
func (s *Session) Roots() []*Object { return slices.Clone(s.roots) }

// NumObjects returns the number of syncing objects in the replica.
func (s *Session) NumObjects() int { return len(s.objects) }

// RegisterHandler routes remote changes for objects of type t to h,
// replacing any previous handler.
func (s *Session) RegisterHandler(t ObjectType, h Handler) {
	s.handlers[t] = h
}

// OnDeleteAcknowledged registers fn to run when the server confirms a
// delete this session sent. fn receives the removed subtree root.
func (s *Session) OnDeleteAcknowledged(fn func(*Object)) {
	s.deleteAckListeners = append(s.deleteAckListeners, fn)
}

// Disconnected reports whether the session has ended and why.
func (s *Session) Disconnected() (bool, string) {
	return s.disconnected, s.reason
}

// Leave ends the session. Later operations return ErrDisconnected.
func (s *Session) Leave(reason string) {
	if s.disconnected {
		return
	}
	s.logger.Info("leaving session", "reason", reason)
	if err := s.call(request{Kind: requestLeave, Reason: reason}, &reply{}); err != nil {
		s.logger.Warn("leave request failed", "error", err)
	}
	s.disconnected = true
	s.reason = reason
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("closing transport", "error", err)
	}
}

// CreateBatch creates local objects (with their local children) on the
// server as children of parent, starting at childIndex. A nil parent
// creates roots. childIndex -1 appends.
func (s *Session) CreateBatch(objects []*Object, parent *Object, childIndex int) error {
	if s.disconnected {
		return ErrDisconnected
	}
	if len(objects) == 0 {
		return nil
	}

	parentID := NoObject
	if parent != nil {
		if !parent.syncing || parent.session != s || parent.deletePending {
			return fmt.Errorf("create under %v: %w", parent, ErrNotSyncing)
		}
		if parent.IsFullyLocked() {
			return fmt.Errorf("create under %v: %w", parent, ErrLocked)
		}
		parentID = parent.id
	}

	snapshots := make([]objectSnapshot, 0, len(objects))
	var created []*Object
	for _, object := range objects {
		if object.syncing {
			return fmt.Errorf("create %v: %w", object, ErrAlreadySyncing)
		}
		snapshots = append(snapshots, snapshotOf(object))
		created = append(created, object.SelfAndDescendants()...)
	}

	var response reply
	err := s.call(request{
		Kind:       requestCreate,
		Parent:     parentID,
		ChildIndex: childIndex,
		Objects:    snapshots,
	}, &response)
	if err != nil {
		return err
	}
	if len(response.IDs) != len(created) {
		return fmt.Errorf("create reply carries %d ids for %d objects", len(response.IDs), len(created))
	}

	for i, object := range created {
		object.id = response.IDs[i]
		object.session = s
		object.syncing = true
		s.objects[object.id] = object
	}
	for i, object := range objects {
		if parent == nil {
			detach(object)
			s.roots = append(s.roots, object)
			continue
		}
		index := -1
		if childIndex >= 0 {
			index = childIndex + i
		}
		attach(object, parent, index)
	}
	return nil
}

// Delete removes object and its subtree from the server. The replica
// keeps the subtree, marked delete-pending, until the acknowledgement
// arrives in a later Receive.
func (s *Session) Delete(object *Object) error {
	if s.disconnected {
		return ErrDisconnected
	}
	if !object.syncing || object.session != s {
		return fmt.Errorf("delete %v: %w", object, ErrNotSyncing)
	}
	if object.deletePending {
		return nil
	}
	if object.IsLocked() {
		return fmt.Errorf("delete %v: %w", object, ErrLocked)
	}
	if err := s.call(request{Kind: requestDelete, Object: object.id}, &reply{}); err != nil {
		return err
	}
	for _, descendant := range object.SelfAndDescendants() {
		descendant.deletePending = true
		descendant.lockRequested = false
		descendant.holder = UserID{}
	}
	return nil
}

// GetReferences returns every property in the replica whose value is a
// reference to target, ordered by object id then key.
func (s *Session) GetReferences(target *Object) []Reference {
	if target == nil || !target.syncing {
		return nil
	}
	var references []Reference
	for _, object := range s.objects {
		for key, value := range object.properties {
			if value.Kind == KindRef && value.Ref == target.id {
				references = append(references, Reference{Object: object, Key: key})
			}
		}
	}
	slices.SortFunc(references, func(a, b Reference) int {
		if c := cmp.Compare(a.Object.id, b.Object.id); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return references
}

func (s *Session) set(object *Object, key string, value Value) error {
	if s.disconnected {
		return ErrDisconnected
	}
	if object.deletePending {
		object.setLocal(key, value)
		return nil
	}
	if object.properties[key].Equal(value) {
		return nil
	}
	if object.IsLocked() {
		return fmt.Errorf("set %s on %v: %w", key, object, ErrLocked)
	}
	object.setLocal(key, value)
	return s.call(request{Kind: requestSet, Object: object.id, Key: key, Value: value}, &reply{})
}

func (s *Session) reparent(child, parent *Object, index int) error {
	if s.disconnected {
		return ErrDisconnected
	}
	if child.deletePending || parent.deletePending {
		return fmt.Errorf("attach %v under %v: %w", child, parent, ErrNotSyncing)
	}
	if child.parent == parent && (index < 0 || child.ChildIndex() == index) {
		return nil
	}
	if child.IsLocked() || parent.IsFullyLocked() {
		return fmt.Errorf("attach %v under %v: %w", child, parent, ErrLocked)
	}
	if child.parent == nil {
		s.removeRoot(child)
	}
	attach(child, parent, index)
	return s.call(request{Kind: requestReparent, Object: child.id, Parent: parent.id, ChildIndex: index}, &reply{})
}

func (s *Session) requestLock(object *Object) error {
	if s.disconnected {
		return ErrDisconnected
	}
	if object.HasLock() || object.lockRequested || object.deletePending {
		return nil
	}
	var response reply
	if err := s.call(request{Kind: requestLock, Object: object.id}, &response); err != nil {
		return err
	}
	if response.Granted {
		object.holder = s.user.ID
	} else {
		object.lockRequested = true
	}
	return nil
}

func (s *Session) releaseLock(object *Object) error {
	if s.disconnected {
		return ErrDisconnected
	}
	held := object.HasLock()
	if !held && !object.lockRequested {
		return nil
	}
	object.lockRequested = false
	if held {
		object.holder = UserID{}
	}
	return s.call(request{Kind: requestUnlock, Object: object.id}, &reply{})
}

func (s *Session) call(req request, response *reply) error {
	if s.disconnected {
		return ErrDisconnected
	}
	data, err := codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", req.Kind, err)
	}
	replyData, err := s.transport.Roundtrip(data)
	if err != nil {
		return fmt.Errorf("%s request: %w", req.Kind, err)
	}
	if err := codec.Unmarshal(replyData, response); err != nil {
		return fmt.Errorf("decoding %s reply: %w", req.Kind, err)
	}
	if response.Error != "" {
		return &RejectedError{Op: req.Kind.String(), Object: req.Object, Reason: response.Error}
	}
	return nil
}

func (s *Session) removeRoot(object *Object) {
	if i := slices.Index(s.roots, object); i >= 0 {
		s.roots = slices.Delete(s.roots, i, i+1)
	}
}

func snapshotOf(object *Object) objectSnapshot {
	snapshot := objectSnapshot{
		ID:         object.id,
		Type:       object.objectType,
		Properties: object.properties,
		Holder:     object.holder,
	}
	for _, child := range object.children {
		snapshot.Children = append(snapshot.Children, snapshotOf(child))
	}
	return snapshot
}
