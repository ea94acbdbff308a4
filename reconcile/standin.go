// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"slices"

	"github.com/bureau-foundation/scenesync/scene"
)

// StandIns tracks the stand-in actors spawned for each missing class.
type StandIns struct {
	byClass map[string][]scene.EntityID
}

// NewStandIns returns an empty tracker.
func NewStandIns() *StandIns {
	return &StandIns{byClass: make(map[string][]scene.EntityID)}
}

// Add records actor as a stand-in for class.
func (s *StandIns) Add(class string, actor scene.EntityID) {
	if slices.Contains(s.byClass[class], actor) {
		return
	}
	s.byClass[class] = append(s.byClass[class], actor)
}

// Remove forgets a stand-in.
func (s *StandIns) Remove(class string, actor scene.EntityID) {
	actors := slices.DeleteFunc(s.byClass[class], func(id scene.EntityID) bool { return id == actor })
	if len(actors) == 0 {
		delete(s.byClass, class)
		return
	}
	s.byClass[class] = actors
}

// Take returns and forgets the stand-ins for class.
func (s *StandIns) Take(class string) []scene.EntityID {
	actors := s.byClass[class]
	delete(s.byClass, class)
	return actors
}

// Classes returns the missing classes with stand-ins, sorted.
func (s *StandIns) Classes() []string {
	classes := make([]string, 0, len(s.byClass))
	for class := range s.byClass {
		classes = append(classes, class)
	}
	slices.Sort(classes)
	return classes
}

// Len returns the number of tracked stand-ins.
func (s *StandIns) Len() int {
	n := 0
	for _, actors := range s.byClass {
		n += len(actors)
	}
	return n
}

// ClassAvailable replaces the stand-ins for a class that has just been
// registered with actors of the real class.
func (e *Engine) ClassAvailable(class string) {
	if _, ok := e.world.ResolveClass(class); !ok {
		return
	}
	for _, standIn := range e.standIns.Take(class) {
		object := e.registry.Lookup(standIn)
		if object == nil || !object.IsSyncing() || !e.world.IsValid(standIn) {
			continue
		}
		e.logger.Info("replacing stand-in", "class", class, "object_id", object.ID())
		e.cleanUpChildren(object, nil, false)
		e.registry.Unbind(object)
		e.numSynced--
		e.dropSelected(standIn)
		e.destroyActor(standIn)
		e.OnCreate(object, object.ChildIndex())
	}
}
