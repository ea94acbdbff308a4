// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"slices"

	"cogentcore.org/core/math32"
)

// LocalRef identifies a local brush entity. Zero means none. The scene
// package converts its entity ids to and from this type.
type LocalRef uint64

// Model is a brush's complete geometry.
type Model struct {
	Bounds            Bounds
	Surfaces          []Surface
	NumSharedSides    int32
	Polys             []Poly
	RootOutside       bool
	Linked            bool
	NumUniqueVertices int32
	Vertices          []Vertex
	Lightmass         []LightmassSettings

	// BSP topology.
	Vectors   []math32.Vector3
	Points    []math32.Vector3
	Nodes     []Node
	Verts     []Vert
	LeafHulls []int32
	Leaves    []Leaf
}

// Bounds is an axis-aligned box plus a bounding sphere radius about its
// center.
type Bounds struct {
	Box          math32.Box3
	SphereRadius float32
}

// Surface is one BSP surface.
type Surface struct {
	Material       string
	PolyFlags      uint32
	Base           int32
	Normal         int32
	TextureU       int32
	TextureV       int32
	BrushPoly      int32
	Actor          LocalRef
	Plane          math32.Vector4
	LightMapScale  float32
	LightmassIndex int32
}

// Poly is one source polygon of the brush.
type Poly struct {
	Vertices      []math32.Vector3
	Base          math32.Vector3
	Normal        math32.Vector3
	TextureU      math32.Vector3
	TextureV      math32.Vector3
	Material      string
	PolyFlags     uint32
	Actor         LocalRef
	ItemName      string
	LightMapScale float32
}

// Vertex is one entry of the render vertex buffer.
type Vertex struct {
	Position       math32.Vector3
	ShadowTexCoord math32.Vector2
	TangentX       math32.Vector4
	TangentZ       math32.Vector4
	TexCoord       math32.Vector2
}

// LightmassSettings are per-surface static lighting parameters. The four
// flags pack into one byte on the wire.
type LightmassSettings struct {
	UseTwoSidedLighting                bool
	ShadowIndirectOnly                 bool
	UseEmissiveForStaticLighting       bool
	UseVertexNormalForHemisphereGather bool

	EmissiveLightFalloffExponent         float32
	EmissiveLightExplicitInfluenceRadius float32
	EmissiveBoost                        float32
	DiffuseBoost                         float32
}

// Node is a BSP tree node.
type Node struct {
	Plane          math32.Vector4
	VertPool       int32
	Surface        int32
	VertexIndex    int32
	NumVertices    uint8
	Flags          uint8
	Back           int32
	Front          int32
	Coplanar       int32
	CollisionBound int32
	Zone           [2]uint8
	Leaf           [2]int32
}

// Vert is a BSP vertex pool entry.
type Vert struct {
	Point          int32
	Side           int32
	ShadowTexCoord math32.Vector2
	BackfaceShadow math32.Vector2
}

// Leaf is a BSP leaf.
type Leaf struct {
	Zone int32
}

// NewEmpty returns a model with no geometry, used for freshly spawned
// brushes.
func NewEmpty() *Model {
	return &Model{Bounds: Bounds{Box: math32.B3(0, 0, 0, 0, 0, 0)}}
}

// IsEmpty reports whether the model has no surfaces or polygons.
func (m *Model) IsEmpty() bool {
	return len(m.Surfaces) == 0 && len(m.Polys) == 0
}

// HasInvalidSurfaces reports whether any surface still points at a brush
// other than owner. The host leaves surfaces in that state after a
// surface-alignment edit until geometry is rebuilt.
func (m *Model) HasInvalidSurfaces(owner LocalRef) bool {
	for _, surface := range m.Surfaces {
		if surface.Actor != owner {
			return true
		}
	}
	return false
}

// SetOwner points every surface and polygon at owner.
func (m *Model) SetOwner(owner LocalRef) {
	for i := range m.Surfaces {
		m.Surfaces[i].Actor = owner
	}
	for i := range m.Polys {
		m.Polys[i].Actor = owner
	}
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	clone := *m
	clone.Surfaces = slices.Clone(m.Surfaces)
	clone.Polys = slices.Clone(m.Polys)
	for i := range clone.Polys {
		clone.Polys[i].Vertices = slices.Clone(m.Polys[i].Vertices)
	}
	clone.Vertices = slices.Clone(m.Vertices)
	clone.Lightmass = slices.Clone(m.Lightmass)
	clone.Vectors = slices.Clone(m.Vectors)
	clone.Points = slices.Clone(m.Points)
	clone.Nodes = slices.Clone(m.Nodes)
	clone.Verts = slices.Clone(m.Verts)
	clone.LeafHulls = slices.Clone(m.LeafHulls)
	clone.Leaves = slices.Clone(m.Leaves)
	return &clone
}
