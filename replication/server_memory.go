// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/scenesync/lib/codec"
)

// Compile-time interface check.
var _ Transport = (*memoryTransport)(nil)

// MemoryServer is an in-process authoritative server. It holds the
// shared tree, assigns object ids, enforces locks and fans events out to
// every joined session. Safe for concurrent use.
type MemoryServer struct {
	mu     sync.Mutex
	logger *slog.Logger
	colors []string

	nextID  ObjectID
	objects map[ObjectID]*serverObject
	roots   []ObjectID

	// clients in join order.
	clients []*memoryTransport
}

type serverObject struct {
	id         ObjectID
	objectType ObjectType
	properties Properties
	parent     ObjectID
	children   []ObjectID
	holder     UserID
	// waiting holds users whose lock requests are queued, oldest first.
	waiting []UserID
}

// MemoryServerConfig configures a MemoryServer.
type MemoryServerConfig struct {
	// Colors are handed to users in join order, cycling. Empty means
	// every user gets an empty color.
	Colors []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewMemoryServer creates an empty server.
func NewMemoryServer(config MemoryServerConfig) *MemoryServer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryServer{
		logger:  logger,
		colors:  slices.Clone(config.Colors),
		nextID:  1,
		objects: make(map[ObjectID]*serverObject),
	}
}

// Join connects a new user and returns its session.
func (s *MemoryServer) Join(name string, logger *slog.Logger) (*Session, error) {
	return Join(s.Connect(), SessionConfig{Name: name, Logger: logger})
}

// Connect returns a transport to the server. The connection becomes a
// user when its first request (a join) arrives.
func (s *MemoryServer) Connect() Transport {
	return &memoryTransport{server: s}
}

// NumObjects returns the number of objects in the authoritative tree.
func (s *MemoryServer) NumObjects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Property returns the authoritative value of key on object id.
func (s *MemoryServer) Property(id ObjectID, key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	object := s.objects[id]
	if object == nil {
		return Value{}, false
	}
	value, ok := object.properties[key]
	return value.Clone(), ok
}

// ParentOf returns the authoritative parent of object id.
func (s *MemoryServer) ParentOf(id ObjectID) (ObjectID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	object := s.objects[id]
	if object == nil {
		return NoObject, false
	}
	return object.parent, true
}

// HolderOf returns the user directly holding a lock on object id.
func (s *MemoryServer) HolderOf(id ObjectID) (UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	object := s.objects[id]
	if object == nil || object.holder == (UserID{}) {
		return UserID{}, false
	}
	return object.holder, true
}

type memoryTransport struct {
	server *MemoryServer

	// Guarded by server.mu.
	user   User
	joined bool
	closed bool
	inbox  [][]byte
}

func (t *memoryTransport) Roundtrip(data []byte) ([]byte, error) {
	var req request
	if err := codec.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	t.server.mu.Lock()
	response, err := t.server.handle(t, &req)
	t.server.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return codec.Marshal(response)
}

func (t *memoryTransport) Drain() [][]byte {
	t.server.mu.Lock()
	defer t.server.mu.Unlock()
	messages := t.inbox
	t.inbox = nil
	return messages
}

func (t *memoryTransport) Close() error {
	t.server.mu.Lock()
	defer t.server.mu.Unlock()
	if t.joined && !t.closed {
		t.server.leave(t, "connection closed")
	}
	t.closed = true
	return nil
}

var errClosed = errors.New("replication: transport closed")

// handle applies one request. Called with s.mu held. Rejections are
// reported in the reply, not as errors.
func (s *MemoryServer) handle(client *memoryTransport, req *request) (*reply, error) {
	if client.closed {
		return nil, errClosed
	}
	if !client.joined && req.Kind != requestJoin {
		return &reply{Error: "not joined"}, nil
	}

	switch req.Kind {
	case requestJoin:
		return s.join(client, req.Name), nil
	case requestLeave:
		s.leave(client, req.Reason)
		client.closed = true
		return &reply{}, nil
	case requestCreate:
		return s.create(client, req), nil
	case requestDelete:
		return s.delete(client, req.Object), nil
	case requestSet:
		return s.set(client, req.Object, req.Key, req.Value), nil
	case requestReparent:
		return s.reparent(client, req.Object, req.Parent, req.ChildIndex), nil
	case requestLock:
		return s.lock(client, req.Object), nil
	case requestUnlock:
		return s.unlock(client, req.Object), nil
	default:
		return &reply{Error: fmt.Sprintf("unknown request %s", req.Kind)}, nil
	}
}

func (s *MemoryServer) join(client *memoryTransport, name string) *reply {
	if client.joined {
		return &reply{Error: "already joined"}
	}
	user := User{ID: ulid.Make(), Name: name}
	if len(s.colors) > 0 {
		user.Color = s.colors[len(s.clients)%len(s.colors)]
	}
	client.user = user
	client.joined = true

	for _, other := range s.clients {
		s.send(client, &event{Kind: eventUserJoined, User: &other.user})
	}
	s.broadcast(client, &event{Kind: eventUserJoined, User: &user})
	s.clients = append(s.clients, client)

	for _, id := range s.roots {
		snapshot := s.snapshot(id)
		s.send(client, &event{Kind: eventCreate, Object: &snapshot, ChildIndex: -1})
	}

	s.logger.Info("user joined", "user", name, "user_id", user.ID.String())
	return &reply{User: &user}
}

func (s *MemoryServer) leave(client *memoryTransport, reason string) {
	if i := slices.Index(s.clients, client); i >= 0 {
		s.clients = slices.Delete(s.clients, i, i+1)
	}
	client.joined = false
	user := client.user.ID

	var released []ObjectID
	for _, id := range s.sortedIDs() {
		object := s.objects[id]
		if i := slices.Index(object.waiting, user); i >= 0 {
			object.waiting = slices.Delete(object.waiting, i, i+1)
		}
		if object.holder == user {
			released = append(released, id)
		}
	}
	for _, id := range released {
		s.release(s.objects[id])
	}
	s.grantWaiting()

	s.broadcast(nil, &event{Kind: eventUserLeft, User: &client.user})
	s.logger.Info("user left", "user", client.user.Name, "reason", reason)
}

func (s *MemoryServer) create(client *memoryTransport, req *request) *reply {
	var parent *serverObject
	if req.Parent != NoObject {
		parent = s.objects[req.Parent]
		if parent == nil {
			return &reply{Error: fmt.Sprintf("parent %d does not exist", req.Parent)}
		}
		if s.lockKindFor(parent, client.user.ID) == FullyLocked {
			return &reply{Error: fmt.Sprintf("parent %d is fully locked", req.Parent)}
		}
	}

	var ids []ObjectID
	for i := range req.Objects {
		ids = s.insert(&req.Objects[i], req.Parent, ids)
	}

	index := req.ChildIndex
	for i := range req.Objects {
		root := req.Objects[i].ID
		position := s.place(root, parent, index)
		if index >= 0 {
			index++
		}
		snapshot := s.snapshot(root)
		s.broadcast(client, &event{
			Kind:       eventCreate,
			Object:     &snapshot,
			Parent:     req.Parent,
			ChildIndex: position,
		})
	}
	return &reply{IDs: ids}
}

// insert assigns ids to a snapshot subtree in preorder and records it.
// The root is not attached to its parent yet. New objects start
// unlocked.
func (s *MemoryServer) insert(snapshot *objectSnapshot, parent ObjectID, ids []ObjectID) []ObjectID {
	id := s.nextID
	s.nextID++
	snapshot.ID = id
	object := &serverObject{
		id:         id,
		objectType: snapshot.Type,
		properties: snapshot.Properties.Clone(),
		parent:     parent,
	}
	snapshot.Holder = UserID{}
	s.objects[id] = object
	ids = append(ids, id)
	for i := range snapshot.Children {
		child := &snapshot.Children[i]
		ids = s.insert(child, id, ids)
		object.children = append(object.children, child.ID)
	}
	return ids
}

// place attaches a recorded object under parent (nil for roots) at index
// and returns the position it landed at.
func (s *MemoryServer) place(id ObjectID, parent *serverObject, index int) int {
	if parent == nil {
		s.objects[id].parent = NoObject
		s.roots = append(s.roots, id)
		return len(s.roots) - 1
	}
	s.objects[id].parent = parent.id
	if index < 0 || index > len(parent.children) {
		parent.children = append(parent.children, id)
		return len(parent.children) - 1
	}
	parent.children = slices.Insert(parent.children, index, id)
	return index
}

func (s *MemoryServer) unplace(object *serverObject) {
	if object.parent == NoObject {
		if i := slices.Index(s.roots, object.id); i >= 0 {
			s.roots = slices.Delete(s.roots, i, i+1)
		}
		return
	}
	parent := s.objects[object.parent]
	if i := slices.Index(parent.children, object.id); i >= 0 {
		parent.children = slices.Delete(parent.children, i, i+1)
	}
}

func (s *MemoryServer) delete(client *memoryTransport, id ObjectID) *reply {
	object := s.objects[id]
	if object == nil {
		// Already removed by someone else; the ack still lets the sender
		// drop its replica.
		s.send(client, &event{Kind: eventDeleteAck, ID: id})
		return &reply{}
	}
	if s.lockKindFor(object, client.user.ID) != Unlocked {
		return &reply{Error: "object is locked"}
	}

	s.unplace(object)
	for _, descendant := range s.subtree(id) {
		delete(s.objects, descendant)
	}
	s.broadcast(client, &event{Kind: eventDelete, ID: id})
	s.send(client, &event{Kind: eventDeleteAck, ID: id})
	s.grantWaiting()
	return &reply{}
}

func (s *MemoryServer) set(client *memoryTransport, id ObjectID, key string, value Value) *reply {
	object := s.objects[id]
	if object == nil {
		return &reply{Error: fmt.Sprintf("object %d does not exist", id)}
	}
	if s.lockKindFor(object, client.user.ID) != Unlocked {
		s.send(client, &event{Kind: eventProperty, ID: id, Key: key, Value: object.properties[key]})
		return &reply{Error: "object is locked"}
	}
	if value.IsNull() {
		delete(object.properties, key)
	} else {
		object.properties[key] = value.Clone()
	}
	s.broadcast(client, &event{Kind: eventProperty, ID: id, Key: key, Value: value})
	return &reply{}
}

func (s *MemoryServer) reparent(client *memoryTransport, id, parentID ObjectID, index int) *reply {
	object := s.objects[id]
	if object == nil {
		return &reply{Error: fmt.Sprintf("object %d does not exist", id)}
	}
	parent := s.objects[parentID]
	reason := ""
	switch {
	case parent == nil:
		reason = fmt.Sprintf("parent %d does not exist", parentID)
	case s.lockKindFor(object, client.user.ID) != Unlocked:
		reason = "object is locked"
	case s.lockKindFor(parent, client.user.ID) == FullyLocked:
		reason = "parent is fully locked"
	case parentID == id || slices.Contains(s.subtree(id), parentID):
		reason = "parent is a descendant"
	}
	if reason != "" {
		s.send(client, &event{
			Kind:       eventParent,
			ID:         id,
			Parent:     object.parent,
			ChildIndex: s.indexOf(object),
		})
		return &reply{Error: reason}
	}

	s.unplace(object)
	position := s.place(id, parent, index)
	s.broadcast(client, &event{Kind: eventParent, ID: id, Parent: parentID, ChildIndex: position})
	return &reply{}
}

func (s *MemoryServer) indexOf(object *serverObject) int {
	if object.parent == NoObject {
		return slices.Index(s.roots, object.id)
	}
	return slices.Index(s.objects[object.parent].children, object.id)
}

func (s *MemoryServer) lock(client *memoryTransport, id ObjectID) *reply {
	object := s.objects[id]
	if object == nil {
		return &reply{Error: fmt.Sprintf("object %d does not exist", id)}
	}
	user := client.user.ID
	if object.holder == user {
		return &reply{Granted: true}
	}
	if s.conflicts(object, user) {
		if !slices.Contains(object.waiting, user) {
			object.waiting = append(object.waiting, user)
		}
		return &reply{}
	}
	object.holder = user
	s.broadcast(nil, &event{Kind: eventLock, ID: id, Holder: user})
	return &reply{Granted: true}
}

func (s *MemoryServer) unlock(client *memoryTransport, id ObjectID) *reply {
	object := s.objects[id]
	if object == nil {
		return &reply{}
	}
	user := client.user.ID
	if i := slices.Index(object.waiting, user); i >= 0 {
		object.waiting = slices.Delete(object.waiting, i, i+1)
	}
	if object.holder == user {
		s.release(object)
		s.grantWaiting()
	}
	return &reply{}
}

// release clears the holder of object, handing the lock straight to the
// first waiting user that no longer conflicts.
func (s *MemoryServer) release(object *serverObject) {
	object.holder = UserID{}
	for i, next := range object.waiting {
		if s.conflicts(object, next) {
			continue
		}
		object.waiting = slices.Delete(object.waiting, i, i+1)
		object.holder = next
		break
	}
	s.broadcast(nil, &event{Kind: eventLock, ID: object.id, Holder: object.holder})
}

// grantWaiting grants queued requests anywhere in the tree that no longer
// conflict, oldest object first.
func (s *MemoryServer) grantWaiting() {
	for _, id := range s.sortedIDs() {
		object := s.objects[id]
		if object.holder != (UserID{}) {
			continue
		}
		for i, next := range object.waiting {
			if s.conflicts(object, next) {
				continue
			}
			object.waiting = slices.Delete(object.waiting, i, i+1)
			object.holder = next
			s.broadcast(nil, &event{Kind: eventLock, ID: id, Holder: next})
			break
		}
	}
}

// conflicts reports whether someone other than user holds a lock on
// object, an ancestor, or a descendant.
func (s *MemoryServer) conflicts(object *serverObject, user UserID) bool {
	if s.lockKindFor(object, user) != Unlocked {
		return true
	}
	// Roots are never partially locked, but a root lock still conflicts
	// with locks held inside it.
	for _, id := range s.subtree(object.id)[1:] {
		holder := s.objects[id].holder
		if holder != (UserID{}) && holder != user {
			return true
		}
	}
	return false
}

// lockKindFor mirrors Object.LockKind on the authoritative tree.
func (s *MemoryServer) lockKindFor(object *serverObject, user UserID) LockKind {
	for current := object; current != nil; current = s.objects[current.parent] {
		if current.holder != (UserID{}) && current.holder != user {
			return FullyLocked
		}
	}
	if object.parent == NoObject {
		return Unlocked
	}
	for _, id := range s.subtree(object.id)[1:] {
		holder := s.objects[id].holder
		if holder != (UserID{}) && holder != user {
			return PartiallyLocked
		}
	}
	return Unlocked
}

// subtree returns id followed by its descendants in preorder.
func (s *MemoryServer) subtree(id ObjectID) []ObjectID {
	result := []ObjectID{id}
	for _, child := range s.objects[id].children {
		result = append(result, s.subtree(child)...)
	}
	return result
}

func (s *MemoryServer) snapshot(id ObjectID) objectSnapshot {
	object := s.objects[id]
	snapshot := objectSnapshot{
		ID:         id,
		Type:       object.objectType,
		Properties: object.properties,
		Holder:     object.holder,
	}
	for _, child := range object.children {
		snapshot.Children = append(snapshot.Children, s.snapshot(child))
	}
	return snapshot
}

func (s *MemoryServer) sortedIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// send queues an event for one client.
func (s *MemoryServer) send(client *memoryTransport, ev *event) {
	data, err := codec.Marshal(ev)
	if err != nil {
		s.logger.Error("encoding event", "error", err)
		return
	}
	client.inbox = append(client.inbox, data)
}

// broadcast queues an event for every joined client except skip.
func (s *MemoryServer) broadcast(skip *memoryTransport, ev *event) {
	data, err := codec.Marshal(ev)
	if err != nil {
		s.logger.Error("encoding event", "error", err)
		return
	}
	for _, client := range s.clients {
		if client != skip {
			client.inbox = append(client.inbox, data)
		}
	}
}
