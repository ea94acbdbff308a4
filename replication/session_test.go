// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
)

type recorder struct {
	events []string
}

func (r *recorder) add(kind string, object *Object) {
	r.events = append(r.events, fmt.Sprintf("%s %d", kind, object.ID()))
}

func (r *recorder) OnCreate(object *Object, _ int) { r.add("create", object) }
func (r *recorder) OnDelete(object *Object) { r.add("delete", object) }
func (r *recorder) OnLock(object *Object) { r.add("lock", object) }
func (r *recorder) OnUnlock(object *Object) { r.add("unlock", object) }
func (r *recorder) OnLockOwnerChange(object *Object) { r.add("owner", object) }
func (r *recorder) OnParentChange(object *Object, _ int) { r.add("parent", object) }
func (r *recorder) OnPropertyChange(object *Object, key string) {
	r.events = append(r.events, fmt.Sprintf("property %d %s", object.ID(), key))
}

func (r *recorder) take() []string {
	events := r.events
	r.events = nil
	return events
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer() *MemoryServer {
	return NewMemoryServer(MemoryServerConfig{
		Colors: []string{"#ff0000", "#00ff00", "#0000ff"},
		Logger: discardLogger(),
	})
}

func joinRecorded(t *testing.T, server *MemoryServer, name string) (*Session, *recorder) {
	t.Helper()
	session, err := server.Join(name, discardLogger())
	if err != nil {
		t.Fatalf("Join(%s): %v", name, err)
	}
	events := &recorder{}
	for _, objectType := range []ObjectType{TypeActor, TypeComponent, TypeModel, TypeLevel, TypeUObject, TypeBlueprint} {
		session.RegisterHandler(objectType, events)
	}
	return session, events
}

// buildScene creates level(1) > actor(2) > component(3).
func buildScene(t *testing.T, session *Session) (level, actor, component *Object) {
	t.Helper()
	level = NewObject(TypeLevel, Properties{PropName: String("Main")})
	if err := session.CreateBatch([]*Object{level}, nil, -1); err != nil {
		t.Fatalf("CreateBatch(level): %v", err)
	}
	actor = NewObject(TypeActor, Properties{PropName: String("Cube"), PropLabel: String("Cube")})
	component = NewObject(TypeComponent, Properties{PropName: String("Root"), PropIsRoot: Bool(true)})
	if err := actor.AddChild(component, -1); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if err := session.CreateBatch([]*Object{actor}, level, -1); err != nil {
		t.Fatalf("CreateBatch(actor): %v", err)
	}
	return level, actor, component
}

func TestCreateBatchReplicates(t *testing.T) {
	server := newTestServer()
	alice, _ := joinRecorded(t, server, "alice")
	bob, bobEvents := joinRecorded(t, server, "bob")
	alice.Receive()

	level, actor, component := buildScene(t, alice)
	if level.ID() != 1 || actor.ID() != 2 || component.ID() != 3 {
		t.Fatalf("ids = %d %d %d, want 1 2 3", level.ID(), actor.ID(), component.ID())
	}
	if !actor.IsSyncing() || actor.Parent() != level {
		t.Fatal("actor not syncing under level")
	}

	bob.Receive()
	if got := bobEvents.take(); !slices.Equal(got, []string{"create 1", "create 2"}) {
		t.Errorf("bob events = %v", got)
	}
	remote := bob.Object(2)
	if remote == nil {
		t.Fatal("bob has no object 2")
	}
	if remote.Parent() != bob.Object(1) {
		t.Error("remote actor parent is not the level")
	}
	if children := remote.Children(); len(children) != 1 || children[0].ID() != 3 {
		t.Errorf("remote actor children = %v", children)
	}
	if got := remote.Get(PropName); !got.Equal(String("Cube")) {
		t.Errorf("name = %v", got)
	}
	if server.NumObjects() != 3 {
		t.Errorf("server has %d objects, want 3", server.NumObjects())
	}
}

func TestJoinReceivesExistingTree(t *testing.T) {
	server := newTestServer()
	alice, _ := joinRecorded(t, server, "alice")
	buildScene(t, alice)

	carol, carolEvents := joinRecorded(t, server, "carol")
	carol.Receive()
	if got := carolEvents.take(); !slices.Equal(got, []string{"create 1"}) {
		t.Errorf("carol events = %v", got)
	}
	if carol.NumObjects() != 3 {
		t.Errorf("carol has %d objects, want 3", carol.NumObjects())
	}
	if users := carol.Users(); len(users) != 2 || users[0].Name != "alice" {
		t.Errorf("carol users = %v", users)
	}
	if carol.User().Color != "#00ff00" {
		t.Errorf("carol color = %q", carol.User().Color)
	}
}

func TestSetPropagates(t *testing.T) {
	server := newTestServer()
	alice, _ := joinRecorded(t, server, "alice")
	bob, bobEvents := joinRecorded(t, server, "bob")
	_, actor, _ := buildScene(t, alice)
	bob.Receive()
	bobEvents.take()

	if err := actor.Set(PropLabel, String("Box")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Unchanged values are not sent.
	if err := actor.Set(PropLabel, String("Box")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	bob.Receive()
	if got := bobEvents.take(); !slices.Equal(got, []string{"property 2 label"}) {
		t.Errorf("bob events = %v", got)
	}
	if got := bob.Object(2).Get(PropLabel); !got.Equal(String("Box")) {
		t.Errorf("bob label = %v", got)
	}
}

func TestLockKinds(t *testing.T) {
	server := newTestServer()
	alice, aliceEvents := joinRecorded(t, server, "alice")
	bob, _ := joinRecorded(t, server, "bob")

	level := NewObject(TypeLevel, nil)
	if err := alice.CreateBatch([]*Object{level}, nil, -1); err != nil {
		t.Fatal(err)
	}
	outer := NewObject(TypeActor, nil)
	inner := NewObject(TypeActor, nil)
	if err := outer.AddChild(inner, -1); err != nil {
		t.Fatal(err)
	}
	if err := alice.CreateBatch([]*Object{outer}, level, -1); err != nil {
		t.Fatal(err)
	}
	bob.Receive()
	alice.Receive()
	aliceEvents.take()

	if err := bob.Object(inner.ID()).RequestLock(); err != nil {
		t.Fatalf("RequestLock: %v", err)
	}
	if !bob.Object(inner.ID()).HasLock() {
		t.Fatal("bob does not hold the lock")
	}
	if bob.Object(inner.ID()).IsLocked() {
		t.Error("own lock reported as locked")
	}

	alice.Receive()
	if got := aliceEvents.take(); !slices.Equal(got, []string{"lock 2", "lock 3"}) {
		t.Errorf("alice events = %v", got)
	}
	if kind := inner.LockKind(); kind != FullyLocked {
		t.Errorf("inner = %v, want fully-locked", kind)
	}
	if kind := outer.LockKind(); kind != PartiallyLocked {
		t.Errorf("outer = %v, want partially-locked", kind)
	}
	if kind := level.LockKind(); kind != Unlocked {
		t.Errorf("level = %v, want unlocked", kind)
	}
	if holder := inner.LockHolder(); holder == nil || holder.Name != "bob" {
		t.Errorf("inner holder = %v, want bob", holder)
	}
	if holder := outer.LockHolder(); holder != nil {
		t.Errorf("partially locked holder = %v, want nil", holder)
	}

	if err := outer.Set(PropLabel, String("x")); !errors.Is(err, ErrLocked) {
		t.Errorf("Set on partially locked object = %v, want ErrLocked", err)
	}
	// Partial locks still accept children.
	child := NewObject(TypeActor, nil)
	if err := alice.CreateBatch([]*Object{child}, outer, -1); err != nil {
		t.Errorf("CreateBatch under partially locked parent: %v", err)
	}
	if err := alice.CreateBatch([]*Object{NewObject(TypeComponent, nil)}, inner, -1); !errors.Is(err, ErrLocked) {
		t.Errorf("CreateBatch under fully locked parent = %v, want ErrLocked", err)
	}
}

func TestLockQueueHandsOver(t *testing.T) {
	server := newTestServer()
	alice, aliceEvents := joinRecorded(t, server, "alice")
	bob, bobEvents := joinRecorded(t, server, "bob")
	carol, carolEvents := joinRecorded(t, server, "carol")
	_, actor, _ := buildScene(t, alice)
	bob.Receive()
	carol.Receive()

	if err := actor.RequestLock(); err != nil {
		t.Fatal(err)
	}
	bob.Receive()
	carol.Receive()
	bobEvents.take()
	carolEvents.take()

	bobActor := bob.Object(actor.ID())
	if err := bobActor.RequestLock(); err != nil {
		t.Fatal(err)
	}
	if bobActor.HasLock() || !bobActor.IsLockPending() {
		t.Fatal("bob's request was not queued")
	}

	if err := actor.ReleaseLock(); err != nil {
		t.Fatal(err)
	}
	bob.Receive()
	carol.Receive()
	alice.Receive()

	if !bobActor.HasLock() || bobActor.IsLockPending() {
		t.Error("bob was not granted the queued lock")
	}
	if holder, _ := server.HolderOf(actor.ID()); holder != bob.User().ID {
		t.Error("server holder is not bob")
	}
	if got := bobEvents.take(); !slices.Equal(got, []string{"unlock 2", "unlock 3"}) {
		t.Errorf("bob events = %v", got)
	}
	if got := carolEvents.take(); !slices.Equal(got, []string{"owner 2", "owner 3"}) {
		t.Errorf("carol events = %v", got)
	}
	if got := aliceEvents.take(); !slices.Equal(got, []string{"lock 2", "lock 3"}) {
		t.Errorf("alice events = %v", got)
	}
}

func TestStaleWriteIsCorrected(t *testing.T) {
	server := newTestServer()
	alice, aliceEvents := joinRecorded(t, server, "alice")
	bob, _ := joinRecorded(t, server, "bob")
	_, actor, _ := buildScene(t, alice)
	bob.Receive()

	if err := bob.Object(actor.ID()).RequestLock(); err != nil {
		t.Fatal(err)
	}

	// Alice has not seen the lock yet, so the write reaches the server.
	err := actor.Set(PropLabel, String("Mine"))
	if !IsRejected(err) {
		t.Fatalf("Set = %v, want rejection", err)
	}

	alice.Receive()
	if got := actor.Get(PropLabel); !got.Equal(String("Cube")) {
		t.Errorf("label after correction = %v, want Cube", got)
	}
	if got := aliceEvents.take(); !slices.Equal(got, []string{"lock 2", "lock 3", "property 2 label"}) {
		t.Errorf("alice events = %v", got)
	}
	if value, _ := server.Property(actor.ID(), PropLabel); !value.Equal(String("Cube")) {
		t.Errorf("server label = %v", value)
	}
}

func TestReparentIntoLockedParentIsCorrected(t *testing.T) {
	server := newTestServer()
	alice, aliceEvents := joinRecorded(t, server, "alice")
	bob, _ := joinRecorded(t, server, "bob")

	level := NewObject(TypeLevel, nil)
	if err := alice.CreateBatch([]*Object{level}, nil, -1); err != nil {
		t.Fatal(err)
	}
	first := NewObject(TypeActor, nil)
	second := NewObject(TypeActor, nil)
	if err := alice.CreateBatch([]*Object{first, second}, level, -1); err != nil {
		t.Fatal(err)
	}
	bob.Receive()
	alice.Receive()
	aliceEvents.take()

	if err := bob.Object(second.ID()).RequestLock(); err != nil {
		t.Fatal(err)
	}
	if err := second.AddChild(first, -1); !IsRejected(err) {
		t.Fatalf("AddChild = %v, want rejection", err)
	}

	alice.Receive()
	if first.Parent() != level || first.ChildIndex() != 0 {
		t.Errorf("first parent = %v index %d, want level index 0", first.Parent(), first.ChildIndex())
	}
	// first briefly sat under the locked parent in the replica.
	want := []string{"lock 3", "lock 2", "parent 2", "unlock 2"}
	if got := aliceEvents.take(); !slices.Equal(got, want) {
		t.Errorf("alice events = %v", got)
	}
	if parent, _ := server.ParentOf(first.ID()); parent != level.ID() {
		t.Errorf("server parent = %d, want %d", parent, level.ID())
	}
}

func TestDeleteIsAcknowledged(t *testing.T) {
	server := newTestServer()
	alice, _ := joinRecorded(t, server, "alice")
	bob, bobEvents := joinRecorded(t, server, "bob")
	_, actor, component := buildScene(t, alice)
	bob.Receive()
	bobEvents.take()

	var acknowledged []ObjectID
	alice.OnDeleteAcknowledged(func(object *Object) {
		acknowledged = append(acknowledged, object.ID())
	})

	if err := alice.Delete(actor); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !actor.IsDeletePending() || !component.IsDeletePending() {
		t.Error("subtree not delete-pending")
	}
	if !actor.IsSyncing() {
		t.Error("actor stopped syncing before acknowledgement")
	}

	bob.Receive()
	if got := bobEvents.take(); !slices.Equal(got, []string{"delete 2"}) {
		t.Errorf("bob events = %v", got)
	}
	if bob.Object(2) != nil || bob.Object(3) != nil {
		t.Error("bob still has the deleted subtree")
	}

	alice.Receive()
	if !slices.Equal(acknowledged, []ObjectID{2}) {
		t.Errorf("acknowledged = %v", acknowledged)
	}
	if actor.IsSyncing() || actor.IsDeletePending() {
		t.Error("acknowledged object still syncing or pending")
	}
	if alice.Object(2) != nil {
		t.Error("alice still maps object 2")
	}
}

func TestDeleteLockedObjectFails(t *testing.T) {
	server := newTestServer()
	alice, _ := joinRecorded(t, server, "alice")
	bob, _ := joinRecorded(t, server, "bob")
	_, actor, _ := buildScene(t, alice)
	bob.Receive()
	if err := bob.Object(actor.ID()).RequestLock(); err != nil {
		t.Fatal(err)
	}
	alice.Receive()

	if err := alice.Delete(actor); !errors.Is(err, ErrLocked) {
		t.Errorf("Delete = %v, want ErrLocked", err)
	}
	if server.NumObjects() != 3 {
		t.Errorf("server has %d objects, want 3", server.NumObjects())
	}
}

func TestGetReferences(t *testing.T) {
	server := newTestServer()
	alice, _ := joinRecorded(t, server, "alice")
	level, actor, component := buildScene(t, alice)

	if err := component.Set("attach_target", Ref(actor.ID())); err != nil {
		t.Fatal(err)
	}
	if err := level.Set("focus", Ref(actor.ID())); err != nil {
		t.Fatal(err)
	}

	references := alice.GetReferences(actor)
	if len(references) != 2 {
		t.Fatalf("got %d references, want 2", len(references))
	}
	if references[0].Object != level || references[0].Key != "focus" {
		t.Errorf("references[0] = %v %s", references[0].Object, references[0].Key)
	}
	if references[1].Object != component || references[1].Key != "attach_target" {
		t.Errorf("references[1] = %v %s", references[1].Object, references[1].Key)
	}
}

func TestLeaveReleasesLocks(t *testing.T) {
	server := newTestServer()
	alice, aliceEvents := joinRecorded(t, server, "alice")
	bob, _ := joinRecorded(t, server, "bob")
	_, actor, _ := buildScene(t, alice)
	bob.Receive()
	if err := bob.Object(actor.ID()).RequestLock(); err != nil {
		t.Fatal(err)
	}
	alice.Receive()
	aliceEvents.take()

	bob.Leave("done for the day")
	if disconnected, reason := bob.Disconnected(); !disconnected || reason != "done for the day" {
		t.Errorf("Disconnected = %v %q", disconnected, reason)
	}
	if err := bob.CreateBatch([]*Object{NewObject(TypeActor, nil)}, nil, -1); !errors.Is(err, ErrDisconnected) {
		t.Errorf("CreateBatch after leave = %v, want ErrDisconnected", err)
	}

	alice.Receive()
	if got := aliceEvents.take(); !slices.Equal(got, []string{"unlock 2", "unlock 3"}) {
		t.Errorf("alice events = %v", got)
	}
	if len(alice.Users()) != 1 {
		t.Errorf("alice sees %d users, want 1", len(alice.Users()))
	}
}

func TestLocalObjectsStayLocal(t *testing.T) {
	object := NewObject(TypeActor, Properties{PropName: String("a")})
	if err := object.Set(PropLabel, String("b")); err != nil {
		t.Fatal(err)
	}
	if err := object.Set(PropName, Value{}); err != nil {
		t.Fatal(err)
	}
	if object.Has(PropName) {
		t.Error("null write did not remove the key")
	}
	if err := object.RequestLock(); !errors.Is(err, ErrNotSyncing) {
		t.Errorf("RequestLock on local object = %v, want ErrNotSyncing", err)
	}
	if object.LockKind() != Unlocked || object.HasLock() {
		t.Error("local object reports a lock")
	}
}
