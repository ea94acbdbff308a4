// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"cogentcore.org/core/math32"

	"github.com/bureau-foundation/scenesync/lib/clock"
	"github.com/bureau-foundation/scenesync/lib/config"
	"github.com/bureau-foundation/scenesync/registry"
	"github.com/bureau-foundation/scenesync/replication"
	"github.com/bureau-foundation/scenesync/scene"
)

const frame = 16 * time.Millisecond

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer() *replication.MemoryServer {
	return replication.NewMemoryServer(replication.MemoryServerConfig{
		Colors: []string{"#e6194b", "#3cb44b", "#ffe119"},
		Logger: discardLogger(),
	})
}

type peer struct {
	t       *testing.T
	world   *scene.World
	session *replication.Session
	engine  *Engine
	clock   *clock.FakeClock
}

type peerOptions struct {
	setup    func(*scene.World)
	settings func(*config.Config)
	before   func(*Engine, *clock.FakeClock)
}

// join connects a user with its own world and starts its engine.
func join(t *testing.T, server *replication.MemoryServer, name string, options peerOptions) *peer {
	t.Helper()
	world := scene.NewWorld()
	if options.setup != nil {
		options.setup(world)
	}
	session, err := server.Join(name, discardLogger())
	if err != nil {
		t.Fatalf("Join(%s): %v", name, err)
	}
	settings := config.Default()
	if options.settings != nil {
		options.settings(settings)
	}
	fake := clock.Fake(time.Unix(1700000000, 0))
	engine := New(Config{
		World:    world,
		Session:  session,
		Clock:    fake,
		Settings: settings,
		Logger:   discardLogger(),
	})
	if options.before != nil {
		options.before(engine, fake)
	}
	engine.Start()
	return &peer{t: t, world: world, session: session, engine: engine, clock: fake}
}

// tick runs one frame of the engine phases in frame order.
func (p *peer) tick() {
	e := p.engine
	e.BeginFrame()
	e.ProcessDeferredCreates()
	p.session.Receive()
	e.FlushUploads()
	e.UpdateSelection()
	e.SyncMovedEntities()
	e.RevertLockedFolders()
	e.RecreateLockedEntities()
	e.SyncParents()
	e.DeleteEmptyFolders()
	e.CollectGarbageIfNeeded()
	e.RebuildGeometryIfNeeded(frame)
}

// settle ticks every peer in turn until the traffic has died down.
func settle(peers ...*peer) {
	for range 3 {
		for _, p := range peers {
			p.tick()
		}
	}
}

func (p *peer) level() scene.EntityID {
	p.t.Helper()
	level := p.world.LevelByName("Main")
	if level == scene.NoEntity {
		p.t.Fatalf("%s has no level Main", p.session.User().Name)
	}
	return level
}

func (p *peer) actor(name string) scene.EntityID {
	p.t.Helper()
	actor := p.world.FindByName(p.level(), name)
	if actor == scene.NoEntity {
		p.t.Fatalf("%s has no actor %q", p.session.User().Name, name)
	}
	return actor
}

func (p *peer) object(actor scene.EntityID) *replication.Object {
	p.t.Helper()
	object := p.engine.Registry().Lookup(actor)
	if object == nil || !object.IsSyncing() {
		p.t.Fatalf("%s: entity %d has no syncing object", p.session.User().Name, actor)
	}
	return object
}

func (p *peer) spawn(class, name string) scene.EntityID {
	p.t.Helper()
	actor, err := p.world.Spawn(scene.SpawnParams{Level: p.level(), Class: class, Name: name})
	if err != nil {
		p.t.Fatalf("Spawn(%s): %v", name, err)
	}
	return actor
}

func mainLevel(world *scene.World) {
	world.AddLevel("Main")
}

func withBox(world *scene.World) {
	level := world.AddLevel("Main")
	if _, err := world.Spawn(scene.SpawnParams{Level: level, Class: "StaticMeshActor", Name: "Box"}); err != nil {
		panic(err)
	}
}

// lockBy selects actor in p's world and lets the lock reach everyone.
func lockBy(p *peer, actor scene.EntityID, others ...*peer) {
	p.world.Select(actor)
	settle(append([]*peer{p}, others...)...)
}

func TestUploadCreatesActorUnderLevel(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()

	box := alice.actor("Box")
	object := alice.object(box)
	levelObject := alice.object(alice.level())
	parent, ok := server.ParentOf(object.ID())
	if !ok || parent != levelObject.ID() {
		t.Errorf("server parent of Box = %d, %v; want level object %d", parent, ok, levelObject.ID())
	}
	// Level, actor and its one component.
	if got := server.NumObjects(); got != 3 {
		t.Errorf("server objects = %d, want 3", got)
	}
	if got := alice.engine.NumSyncedEntities(); got != 1 {
		t.Errorf("NumSyncedEntities = %d, want 1", got)
	}
	if alice.world.Entity(box).IsPinned() {
		t.Error("uploaded actor is still pinned")
	}

	bob := join(t, server, "bob", peerOptions{})
	remote := bob.actor("Box")
	if class := bob.world.Entity(remote).Class(); class != "StaticMeshActor" {
		t.Errorf("bob's Box class = %q, want StaticMeshActor", class)
	}
	if got := bob.object(remote).ID(); got != object.ID() {
		t.Errorf("bob's Box bound to object %d, want %d", got, object.ID())
	}
	root := bob.world.RootComponent(remote)
	if bob.engine.Registry().Lookup(root) == nil {
		t.Error("bob's root component is not bound")
	}
}

func TestBindingIsOneToOne(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()

	box := alice.actor("Box")
	other := alice.spawn("Actor", "Other")
	reg := alice.engine.Registry()
	if err := reg.Bind(other, reg.Lookup(box)); !errors.Is(err, registry.ErrAlreadyBound) {
		t.Errorf("binding a second entity to Box's object = %v, want ErrAlreadyBound", err)
	}
	if got := reg.Resolve(reg.Lookup(box)); got != box {
		t.Errorf("Resolve(Lookup(Box)) = %d, want %d", got, box)
	}
}

func TestUploadBatchesByParent(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	first := alice.spawn("Actor", "First")
	second := alice.spawn("Actor", "Second")
	alice.tick()

	var batches []int
	create := alice.engine.createBatch
	alice.engine.createBatch = func(objects []*replication.Object, parent *replication.Object, index int) error {
		batches = append(batches, len(objects))
		return create(objects, parent, index)
	}

	var children []scene.EntityID
	for i, parent := range []scene.EntityID{first, first, second, first} {
		child := alice.spawn("Actor", "")
		if err := alice.world.Attach(child, parent); err != nil {
			t.Fatalf("Attach child %d: %v", i, err)
		}
		children = append(children, child)
	}
	alice.tick()

	if want := []int{2, 1, 1}; !slices.Equal(batches, want) {
		t.Errorf("batch sizes = %v, want %v", batches, want)
	}
	firstRoot := alice.object(alice.world.RootComponent(first))
	for _, child := range []scene.EntityID{children[0], children[1], children[3]} {
		if parent, _ := server.ParentOf(alice.object(child).ID()); parent != firstRoot.ID() {
			t.Errorf("server parent of %d = %d, want First's root component %d", child, parent, firstRoot.ID())
		}
	}
}

func TestChildWaitsForParentUpload(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	parent := alice.spawn("Actor", "Parent")
	child := alice.spawn("Actor", "Child")
	if err := alice.world.Attach(child, parent); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	alice.tick()
	if alice.engine.PendingUploads() != 1 {
		t.Fatalf("pending uploads after first tick = %d, want 1", alice.engine.PendingUploads())
	}
	alice.tick()
	root := alice.object(alice.world.RootComponent(parent))
	if got, _ := server.ParentOf(alice.object(child).ID()); got != root.ID() {
		t.Errorf("server parent of Child = %d, want %d", got, root.ID())
	}

	bob := join(t, server, "bob", peerOptions{})
	if got := bob.world.Entity(bob.actor("Child")).Parent(); got != bob.actor("Parent") {
		t.Errorf("bob's Child attached to %d, want Parent", got)
	}
}

func TestFailedBatchIsRetried(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	alice.tick()

	create := alice.engine.createBatch
	failures := 1
	alice.engine.createBatch = func(objects []*replication.Object, parent *replication.Object, index int) error {
		if failures > 0 {
			failures--
			return replication.ErrDisconnected
		}
		return create(objects, parent, index)
	}

	box := alice.spawn("Actor", "Box")
	alice.tick()
	if alice.engine.Registry().Lookup(box) != nil {
		t.Error("Box is still bound after its batch failed")
	}
	if alice.engine.PendingUploads() != 1 || !alice.world.Entity(box).IsPinned() {
		t.Fatalf("after failed batch: pending=%d pinned=%v, want Box queued and pinned",
			alice.engine.PendingUploads(), alice.world.Entity(box).IsPinned())
	}

	alice.tick()
	object := alice.object(box)
	if _, ok := server.ParentOf(object.ID()); !ok {
		t.Error("Box is not on the server after the retry")
	}
	if alice.engine.PendingUploads() != 0 || alice.world.Entity(box).IsPinned() {
		t.Error("Box is still queued or pinned after it was uploaded")
	}
}

func TestBatchRejectedByNewLockFallsBackToLevel(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	parent := alice.spawn("Actor", "Parent")
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})
	settle(alice, bob)

	child := bob.spawn("Actor", "Child")
	if err := bob.world.Attach(child, bob.actor("Parent")); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	bob.session.Receive()
	// Alice takes the parent's lock between bob's Receive and his upload,
	// so the server refuses the create.
	alice.world.Select(parent)
	alice.tick()
	bob.engine.FlushUploads()
	if bob.engine.PendingUploads() != 1 {
		t.Fatalf("pending uploads after rejected batch = %d, want 1", bob.engine.PendingUploads())
	}

	settle(bob, alice)
	object := bob.object(child)
	if object.Parent() != bob.object(bob.level()) {
		t.Error("Child did not fall back to the level object")
	}
	if got := bob.world.Entity(child).Parent(); got != scene.NoEntity {
		t.Errorf("Child still attached to %d", got)
	}
	if alice.world.FindByName(alice.level(), "Child") == scene.NoEntity {
		t.Error("alice never received Child")
	}
}

func TestRootActorObjectIsFatal(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	alice.tick()

	mallory, err := server.Join("mallory", discardLogger())
	if err != nil {
		t.Fatalf("Join(mallory): %v", err)
	}
	rogue := replication.NewObject(replication.TypeActor, replication.Properties{
		replication.PropName:  replication.String("Rogue"),
		replication.PropClass: replication.String("Actor"),
	})
	if err := mallory.CreateBatch([]*replication.Object{rogue}, nil, -1); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	alice.tick()

	if !IsProtocolError(alice.engine.Err()) {
		t.Errorf("Err() = %v, want a protocol error", alice.engine.Err())
	}
	if disconnected, _ := alice.session.Disconnected(); !disconnected {
		t.Error("session still connected after a root actor object")
	}
	if got := alice.world.FindByName(alice.level(), "Rogue"); got != scene.NoEntity {
		t.Error("an entity was created for the root actor object")
	}
}

func TestLockedDeleteRecreatesActor(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})
	lockBy(bob, bob.actor("Box"), alice)

	old := alice.actor("Box")
	object := alice.object(old)
	if !object.IsFullyLocked() {
		t.Fatal("Box is not locked for alice")
	}
	objects := server.NumObjects()

	alice.world.Destroy(old)
	if alice.engine.Registry().Lookup(old) != nil {
		t.Error("deleted locked actor is still bound")
	}
	alice.tick()

	recreated := alice.actor("Box")
	if recreated == old {
		t.Fatal("Box was not recreated")
	}
	if got := alice.object(recreated); got != object {
		t.Errorf("recreated Box bound to object %d, want %d", got.ID(), object.ID())
	}
	if got := alice.world.Entity(old).Name(); got != "Box (deleted)" {
		t.Errorf("old Box renamed to %q, want %q", got, "Box (deleted)")
	}
	if !alice.world.Entity(recreated).LockLocation() {
		t.Error("recreated Box is not shown as locked")
	}
	if got := server.NumObjects(); got != objects {
		t.Errorf("server objects = %d, want %d", got, objects)
	}
	if got := alice.engine.NumSyncedEntities(); got != 1 {
		t.Errorf("NumSyncedEntities = %d, want 1", got)
	}
}

func TestUnlockedDeleteReachesOthers(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})
	remote := bob.actor("Box")

	alice.world.Destroy(alice.actor("Box"))
	settle(alice, bob)

	if bob.world.IsValid(remote) {
		t.Error("bob's Box survived the delete")
	}
	if bob.world.Entity(remote) != nil {
		t.Error("bob's deleted Box was not collected")
	}
	if got := server.NumObjects(); got != 1 {
		t.Errorf("server objects = %d, want only the level", got)
	}
	if got := bob.engine.NumSyncedEntities(); got != 0 {
		t.Errorf("bob NumSyncedEntities = %d, want 0", got)
	}
}

func TestDeleteKeepsAttachedChildren(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	parent := alice.spawn("Actor", "Parent")
	alice.tick()
	child := alice.spawn("Actor", "Child")
	if err := alice.world.Attach(child, parent); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})

	alice.world.Destroy(parent)
	settle(alice, bob)

	levelObject := alice.object(alice.level())
	if got, _ := server.ParentOf(alice.object(child).ID()); got != levelObject.ID() {
		t.Errorf("server parent of Child = %d, want the level object", got)
	}
	if !bob.world.IsValid(bob.actor("Child")) {
		t.Error("bob's Child was destroyed with its parent")
	}
}

func TestLockedReparentReverts(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	a := alice.spawn("Actor", "A")
	b := alice.spawn("Actor", "B")
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})
	lockBy(bob, bob.actor("B"), alice)

	object := alice.object(b)
	levelObject := alice.object(alice.level())
	if err := alice.world.Attach(b, a); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	alice.tick()

	if got := alice.world.Entity(b).Parent(); got != scene.NoEntity {
		t.Errorf("B still attached to %d after revert", got)
	}
	if got, _ := server.ParentOf(object.ID()); got != levelObject.ID() {
		t.Errorf("server parent of B = %d, want the level object", got)
	}
	if object.Parent() != levelObject {
		t.Error("replica parent of B changed")
	}
}

func TestLockedFolderAndLabelRevert(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})
	lockBy(bob, bob.actor("Box"), alice)

	box := alice.actor("Box")
	object := alice.object(box)
	alice.world.SetFolder(box, "Props")
	alice.tick()
	if got := alice.world.Entity(box).Folder(); got != "" {
		t.Errorf("folder = %q after revert, want the level root", got)
	}
	if got, _ := server.Property(object.ID(), replication.PropFolder); got.Str != "" {
		t.Errorf("server folder = %q, want the level root", got.Str)
	}

	alice.world.SetLabel(box, "Crate")
	ent := alice.world.Entity(box)
	if ent.Label() != "Box" || ent.Name() != "Box" {
		t.Errorf("label, name = %q, %q after revert; want Box, Box", ent.Label(), ent.Name())
	}
	if got, _ := server.Property(object.ID(), replication.PropLabel); got.Str != "Box" {
		t.Errorf("server label = %q, want Box", got.Str)
	}
}

func TestFolderAndLabelReplicate(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})
	remote := bob.actor("Box")

	box := alice.actor("Box")
	alice.world.SetFolder(box, "Props/Small")
	alice.world.SetLabel(box, "Big Crate")
	settle(alice, bob)

	ent := bob.world.Entity(remote)
	if ent.Folder() != "Props/Small" {
		t.Errorf("bob's folder = %q, want Props/Small", ent.Folder())
	}
	if ent.Label() != "Big Crate" || ent.Name() != "Big_Crate" {
		t.Errorf("bob's label, name = %q, %q; want Big Crate, Big_Crate", ent.Label(), ent.Name())
	}

	alice.world.SetFolder(box, "")
	settle(alice, bob)
	if got := bob.world.Folders(bob.level()); len(got) != 0 {
		t.Errorf("bob's folders after remote move = %v, want none", got)
	}
}

func TestRemoteCreatesRespectBudget(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	for _, name := range []string{"One", "Two", "Three"} {
		alice.spawn("StaticMeshActor", name)
	}
	alice.tick()

	bob := join(t, server, "bob", peerOptions{
		settings: func(c *config.Config) { c.Sync.CreateBudget = 10 * time.Millisecond },
		before: func(e *Engine, fake *clock.FakeClock) {
			e.RegisterEntityInitializer(scene.ClassActor, func(*replication.Object, scene.EntityID) {
				fake.Advance(20 * time.Millisecond)
			})
		},
	})
	counts := []int{len(bob.world.Actors(bob.level()))}
	for range 2 {
		bob.tick()
		counts = append(counts, len(bob.world.Actors(bob.level())))
	}
	if want := []int{1, 2, 3}; !slices.Equal(counts, want) {
		t.Errorf("actors per frame = %v, want %v", counts, want)
	}
	if got := bob.engine.DeferredCreates(); got != 0 {
		t.Errorf("deferred creates = %d, want 0", got)
	}
}

func TestLockStateListenersAndDecorations(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()

	type change struct {
		kind   replication.LockKind
		holder string
	}
	var changes []change
	bob := join(t, server, "bob", peerOptions{before: func(e *Engine, _ *clock.FakeClock) {
		e.OnLockStateChange(func(_ scene.EntityID, kind replication.LockKind, holder *replication.User) {
			name := ""
			if holder != nil {
				name = holder.Name
			}
			changes = append(changes, change{kind, name})
		})
	}})
	changes = nil
	remote := bob.actor("Box")

	var deselected []scene.EntityID
	alice.engine.OnDeselect(func(actor scene.EntityID) { deselected = append(deselected, actor) })

	box := alice.actor("Box")
	lockBy(alice, box, bob)
	if want := []change{{replication.FullyLocked, "alice"}}; !slices.Equal(changes, want) {
		t.Errorf("lock changes = %v, want %v", changes, want)
	}
	if len(bob.engine.Indicator().Decorations(remote)) == 0 {
		t.Error("bob's Box has no lock decoration")
	}
	if !bob.world.Entity(remote).LockLocation() {
		t.Error("bob's Box can still be moved")
	}

	alice.world.Deselect(box)
	settle(alice, bob)
	if want := []scene.EntityID{box}; !slices.Equal(deselected, want) {
		t.Errorf("deselect listener calls = %v, want %v", deselected, want)
	}
	if len(changes) != 2 || changes[1] != (change{replication.Unlocked, ""}) {
		t.Errorf("lock changes = %v, want a final unlock", changes)
	}
	if len(bob.engine.Indicator().Decorations(remote)) != 0 {
		t.Error("bob's Box is still decorated after the unlock")
	}
}

func TestUndoDeleteUploadsAgain(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})

	box := alice.actor("Box")
	old := alice.object(box)
	alice.world.Destroy(box)
	settle(alice, bob)
	if alice.engine.Registry().Lookup(box) != nil {
		t.Fatal("deleted Box still bound after the acknowledgement")
	}

	alice.world.ApplyUndo(func() {
		if err := alice.world.Restore(box); err != nil {
			t.Fatalf("Restore: %v", err)
		}
	}, box)
	settle(alice, bob)

	object := alice.object(box)
	if object == old {
		t.Error("restored Box reused its deleted object")
	}
	if !bob.world.IsValid(bob.actor("Box")) {
		t.Error("bob did not get the restored Box")
	}
}

func TestUndoOfRemoteDeleteDestroysAgain(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{
		setup:    withBox,
		settings: func(c *config.Config) { c.Sync.CollectGarbage = false },
	})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})

	box := alice.actor("Box")
	bob.world.Destroy(bob.actor("Box"))
	settle(bob, alice)
	if alice.world.IsValid(box) {
		t.Fatal("alice's Box survived the remote delete")
	}

	alice.world.ApplyUndo(func() {
		if err := alice.world.Restore(box); err != nil {
			t.Fatalf("Restore: %v", err)
		}
	}, box)
	settle(alice, bob)
	if alice.world.IsValid(box) {
		t.Error("undo brought back an actor deleted by another user")
	}
	if got := server.NumObjects(); got != 1 {
		t.Errorf("server objects = %d, want only the level", got)
	}
}

func TestPropertiesReplicate(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	target := alice.spawn("Actor", "Target")
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})

	box := alice.actor("Box")
	alice.world.SetProperty(box, "Mobility", "Movable")
	alice.world.SetProperty(box, "Target", target)
	settle(alice, bob)

	remote := bob.world.Entity(bob.actor("Box"))
	if got, _ := remote.Property("Mobility"); got != "Movable" {
		t.Errorf("bob's Mobility = %v, want Movable", got)
	}
	if got, _ := remote.Property("Target"); got != bob.actor("Target") {
		t.Errorf("bob's Target = %v, want his Target %d", got, bob.actor("Target"))
	}
}

func TestLockedPropertyEditReverts(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})
	lockBy(bob, bob.actor("Box"), alice)

	box := alice.actor("Box")
	alice.world.SetProperty(box, "Mobility", "Static")
	if _, ok := alice.world.Entity(box).Property("Mobility"); ok {
		t.Error("edit of a locked actor's property was kept")
	}
	if _, ok := server.Property(alice.object(box).ID(), ObjectKey("Mobility")); ok {
		t.Error("edit of a locked actor's property reached the server")
	}
}

func TestTransformsReplicate(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})

	moved := scene.IdentityTransform()
	moved.Location = math32.Vec3(100, 0, 50)
	alice.world.SetTransform(alice.actor("Box"), moved)
	settle(alice, bob)

	if got := bob.world.Transform(bob.actor("Box")); got != moved {
		t.Errorf("bob's transform = %+v, want %+v", got, moved)
	}
}

func TestUnsyncableActorsStayLocal(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{
		setup:    mainLevel,
		settings: func(c *config.Config) { c.Sync.HiddenSyncTypes = []string{"GameplayDebugger"} },
	})
	settings := alice.spawn("WorldSettings", "")
	debugger := alice.spawn("GameplayDebugger", "")
	transient, err := alice.world.Spawn(scene.SpawnParams{Level: alice.level(), Class: "Actor", Transient: true})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	alice.tick()

	if alice.engine.IsSyncable(settings) || alice.engine.Registry().Lookup(settings) != nil {
		t.Error("internal class replicated")
	}
	if alice.engine.IsSyncable(transient) {
		t.Error("transient actor replicated")
	}
	if !alice.engine.IsSyncable(debugger) || alice.engine.Registry().Lookup(debugger) == nil {
		t.Error("hidden sync type did not replicate")
	}
}

func TestMissingClassUsesStandIn(t *testing.T) {
	crate := scene.Class{
		Name:       "Crate",
		Base:       scene.ClassActor,
		Components: []scene.ComponentTemplate{{Name: "Mesh", Class: "StaticMeshComponent", Mesh: scene.MeshStatic, Scene: true}},
	}
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: func(w *scene.World) {
		w.RegisterClass(crate)
		level := w.AddLevel("Main")
		if _, err := w.Spawn(scene.SpawnParams{Level: level, Class: "Crate", Name: "Crate1"}); err != nil {
			panic(err)
		}
	}})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})

	standIn := bob.world.Entity(bob.actor("Crate1"))
	if standIn.Class() != scene.ClassStandIn || standIn.MissingClass() != "Crate" {
		t.Fatalf("bob's Crate1 = %s/%s, want a stand-in for Crate", standIn.Class(), standIn.MissingClass())
	}
	if got := bob.engine.StandIns().Len(); got != 1 {
		t.Errorf("tracked stand-ins = %d, want 1", got)
	}

	bob.world.RegisterClass(crate)
	bob.engine.ClassAvailable("Crate")
	real := bob.world.Entity(bob.actor("Crate1"))
	if real.Class() != "Crate" {
		t.Errorf("Crate1 class after reload = %q, want Crate", real.Class())
	}
	if got := bob.object(real.ID()).ID(); got != alice.object(alice.actor("Crate1")).ID() {
		t.Errorf("reloaded Crate1 bound to object %d, want alice's", got)
	}
	if bob.engine.StandIns().Len() != 0 {
		t.Error("stand-in still tracked after reload")
	}
}

func TestLevelRemovalReachesOthers(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: withBox})
	alice.tick()
	bob := join(t, server, "bob", peerOptions{})

	alice.world.RemoveLevel(alice.level())
	settle(alice, bob)
	if bob.world.LevelByName("Main") != scene.NoEntity {
		t.Error("bob still has the removed level")
	}
	if got := server.NumObjects(); got != 0 {
		t.Errorf("server objects = %d, want 0", got)
	}
	if got := bob.engine.Registry().Len(); got != 0 {
		t.Errorf("bob's registry holds %d bindings, want 0", got)
	}
}

func TestRebuildCountdown(t *testing.T) {
	server := newTestServer()
	alice := join(t, server, "alice", peerOptions{setup: mainLevel})
	alice.engine.MarkGeometryStale(alice.level())

	for _, delta := range []time.Duration{100 * time.Millisecond, 100 * time.Millisecond} {
		alice.engine.RebuildGeometryIfNeeded(delta)
	}
	if got := alice.world.Rebuilds(); got != 0 {
		t.Fatalf("rebuilt after exactly the delay: %d rebuilds", got)
	}
	alice.engine.RebuildGeometryIfNeeded(frame)
	if got := alice.world.Rebuilds(); got != 1 {
		t.Errorf("rebuilds = %d, want 1", got)
	}
	if alice.world.NeedsRebuild() {
		t.Error("level still stale after the rebuild")
	}
}
