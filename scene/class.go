// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

// Well-known class names.
const (
	// ClassActor is the base class of every actor class.
	ClassActor = "Actor"

	// ClassBrush is the base class of actors with editable geometry.
	ClassBrush = "Brush"

	// ClassStandIn is spawned in place of an actor whose class is not
	// available locally.
	ClassStandIn = "StandIn"
)

// MeshKind classifies what a component renders.
type MeshKind uint8

const (
	MeshNone MeshKind = iota
	MeshStatic
	// MeshSpline components deform along a curve.
	MeshSpline
	// MeshModel components render a copy of a brush model.
	MeshModel
)

func (k MeshKind) String() string {
	switch k {
	case MeshNone:
		return "none"
	case MeshStatic:
		return "static"
	case MeshSpline:
		return "spline"
	case MeshModel:
		return "model"
	default:
		return "mesh(?)"
	}
}

// Class describes an actor class.
type Class struct {
	Name string

	// Base is the parent class name. Empty only for ClassActor.
	Base string

	// Hidden classes are not listed in the outliner.
	Hidden bool

	// Internal classes are editor plumbing (world settings, the builder
	// brush) and never replicate.
	Internal bool

	// Components are created with every actor of the class. The first
	// one is the root component.
	Components []ComponentTemplate
}

// ComponentTemplate describes a component created with an actor.
type ComponentTemplate struct {
	Name  string
	Class string
	Mesh  MeshKind

	// Scene components have a transform and can parent other
	// components and attached actors.
	Scene bool
}

// DefaultClasses returns the classes every world starts with.
func DefaultClasses() []Class {
	root := ComponentTemplate{Name: "DefaultSceneRoot", Class: "SceneComponent", Scene: true}
	return []Class{
		{Name: ClassActor, Components: []ComponentTemplate{root}},
		{Name: ClassStandIn, Base: ClassActor, Components: []ComponentTemplate{root}},
		{
			Name: "StaticMeshActor",
			Base: ClassActor,
			Components: []ComponentTemplate{
				{Name: "StaticMeshComponent0", Class: "StaticMeshComponent", Mesh: MeshStatic, Scene: true},
			},
		},
		{
			Name: "PointLight",
			Base: ClassActor,
			Components: []ComponentTemplate{
				{Name: "LightComponent0", Class: "PointLightComponent", Scene: true},
			},
		},
		{
			Name: "SplineMeshActor",
			Base: ClassActor,
			Components: []ComponentTemplate{
				root,
				{Name: "SplineMeshComponent0", Class: "SplineMeshComponent", Mesh: MeshSpline, Scene: true},
			},
		},
		{
			Name: ClassBrush,
			Base: ClassActor,
			Components: []ComponentTemplate{
				{Name: "BrushComponent0", Class: "BrushComponent", Scene: true},
			},
		},
		{Name: "Volume", Base: ClassBrush, Components: []ComponentTemplate{
			{Name: "BrushComponent0", Class: "BrushComponent", Scene: true},
		}},
		{
			Name: "LandscapeProxy",
			Base: ClassActor,
			Components: []ComponentTemplate{
				{Name: "RootComponent0", Class: "SceneComponent", Scene: true},
				{Name: "LandscapeComponent0", Class: "LandscapeComponent", Mesh: MeshStatic, Scene: true},
			},
		},
		{Name: "Landscape", Base: "LandscapeProxy", Components: []ComponentTemplate{
			{Name: "RootComponent0", Class: "SceneComponent", Scene: true},
			{Name: "LandscapeComponent0", Class: "LandscapeComponent", Mesh: MeshStatic, Scene: true},
		}},
		{Name: "WorldSettings", Base: ClassActor, Hidden: true, Internal: true, Components: []ComponentTemplate{root}},
		{Name: "GameplayDebugger", Base: ClassActor, Hidden: true, Components: []ComponentTemplate{root}},
	}
}

// RegisterClass adds or replaces a class.
func (w *World) RegisterClass(class Class) {
	w.classes[class.Name] = class
}

// ResolveClass returns the class with the given name.
func (w *World) ResolveClass(name string) (Class, bool) {
	class, ok := w.classes[name]
	return class, ok
}

// IsA reports whether class is ancestor or derives from it. Unknown
// classes match nothing.
func (w *World) IsA(class, ancestor string) bool {
	for depth := 0; class != "" && depth < len(w.classes)+1; depth++ {
		if class == ancestor {
			return true
		}
		resolved, ok := w.classes[class]
		if !ok {
			return false
		}
		class = resolved.Base
	}
	return false
}
