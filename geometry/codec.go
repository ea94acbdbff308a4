// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package geometry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"cogentcore.org/core/math32"

	"github.com/bureau-foundation/scenesync/lib/codec"
	"github.com/bureau-foundation/scenesync/replication"
)

const (
	blobMagic = "SSGM" // SceneSync Geometry Model

	// FormatVersion is the blob body layout version written by Encode.
	FormatVersion uint16 = 1

	// magic(4) + version(2) + compression(1) + uncompressedSize(4)
	headerSize = 11
)

var (
	// ErrInvalidBlob is returned for data that is not a geometry blob.
	ErrInvalidBlob = errors.New("geometry: invalid blob")

	// ErrUnsupportedVersion is returned for blobs written with a format
	// version this code does not read.
	ErrUnsupportedVersion = errors.New("geometry: unsupported blob version")
)

// CodecConfig configures a Codec.
type CodecConfig struct {
	// Compression is the preferred body compression. Bodies that do not
	// shrink are stored uncompressed.
	Compression codec.Compression

	// Resolver maps brush pointers. Nil encodes every non-zero brush
	// pointer as unsynced.
	Resolver Resolver

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Codec encodes and decodes geometry blobs. It holds no per-call state
// and may be shared.
type Codec struct {
	compression codec.Compression
	resolver    Resolver
	logger      *slog.Logger
}

// NewCodec returns a codec for the given configuration.
func NewCodec(config CodecConfig) *Codec {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{
		compression: config.Compression,
		resolver:    config.Resolver,
		logger:      logger,
	}
}

// Encode serializes m into a blob.
func (c *Codec) Encode(m *Model) ([]byte, error) {
	encoder := wireEncoder{resolver: c.resolver}
	body, err := codec.Marshal(encoder.model(m))
	if err != nil {
		return nil, fmt.Errorf("encoding geometry body: %w", err)
	}
	if encoder.unsynced > 0 {
		c.logger.Warn("geometry references brushes with no replicated object",
			"count", encoder.unsynced)
	}

	packed, tag, err := codec.Compress(body, c.compression)
	if err != nil {
		return nil, fmt.Errorf("compressing geometry body: %w", err)
	}

	blob := make([]byte, headerSize+len(packed))
	copy(blob[0:4], blobMagic)
	binary.LittleEndian.PutUint16(blob[4:6], FormatVersion)
	blob[6] = byte(tag)
	binary.LittleEndian.PutUint32(blob[7:11], uint32(len(body)))
	copy(blob[headerSize:], packed)
	return blob, nil
}

// Decode parses a blob into a new model. Unsynced brush pointers decode
// as zero.
func (c *Codec) Decode(blob []byte) (*Model, error) {
	m := &Model{}
	if err := c.DecodeInto(blob, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeInto parses a blob and replaces the contents of m. Unsynced brush
// pointers keep the value m held at the same position. On error m is
// unchanged.
func (c *Codec) DecodeInto(blob []byte, m *Model) error {
	body, err := openBlob(blob)
	if err != nil {
		return err
	}
	var wire wireModel
	if err := codec.Unmarshal(body, &wire); err != nil {
		return fmt.Errorf("%w: decoding body: %v", ErrInvalidBlob, err)
	}
	decoder := wireDecoder{resolver: c.resolver, previous: m}
	decoded := decoder.model(&wire)
	if decoder.unresolved > 0 {
		c.logger.Debug("geometry references objects with no local brush",
			"count", decoder.unresolved)
	}
	*m = *decoded
	return nil
}

// openBlob validates the header and returns the uncompressed body.
func openBlob(blob []byte) ([]byte, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidBlob, len(blob))
	}
	if magic := string(blob[0:4]); magic != blobMagic {
		return nil, fmt.Errorf("%w: magic %q, want %q", ErrInvalidBlob, magic, blobMagic)
	}
	if version := binary.LittleEndian.Uint16(blob[4:6]); version != FormatVersion {
		return nil, fmt.Errorf("%w: version %d (this code reads %d)", ErrUnsupportedVersion, version, FormatVersion)
	}
	tag := codec.Compression(blob[6])
	size := binary.LittleEndian.Uint32(blob[7:11])
	if size > codec.MaxDecodedSize {
		return nil, fmt.Errorf("%w: body size %d exceeds limit", ErrInvalidBlob, size)
	}
	body, err := codec.Decompress(blob[headerSize:], tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	return body, nil
}

// Wire form. Vectors are fixed arrays and records are CBOR arrays so
// bodies stay compact.

type (
	wireVec2 [2]float32
	wireVec3 [3]float32
	wireVec4 [4]float32
)

type wireRef struct {
	_      struct{} `cbor:",toarray"`
	Kind   RefKind
	Object uint32
	Path   string
}

type wireModel struct {
	_                 struct{} `cbor:",toarray"`
	Bounds            [7]float32
	Surfaces          []wireSurface
	NumSharedSides    int32
	Polys             []wirePoly
	RootOutside       bool
	Linked            bool
	NumUniqueVertices int32
	Vertices          []wireVertex
	Lightmass         []wireLightmass
	Vectors           []wireVec3
	Points            []wireVec3
	Nodes             []wireNode
	Verts             []wireVert
	LeafHulls         []int32
	Leaves            []int32
}

type wireSurface struct {
	_              struct{} `cbor:",toarray"`
	Material       wireRef
	PolyFlags      uint32
	Base           int32
	Normal         int32
	TextureU       int32
	TextureV       int32
	BrushPoly      int32
	Actor          wireRef
	Plane          wireVec4
	LightMapScale  float32
	LightmassIndex int32
}

type wirePoly struct {
	_             struct{} `cbor:",toarray"`
	Vertices      []wireVec3
	Base          wireVec3
	Normal        wireVec3
	TextureU      wireVec3
	TextureV      wireVec3
	Material      wireRef
	PolyFlags     uint32
	Actor         wireRef
	ItemName      string
	LightMapScale float32
}

type wireVertex struct {
	_              struct{} `cbor:",toarray"`
	Position       wireVec3
	ShadowTexCoord wireVec2
	TangentX       wireVec4
	TangentZ       wireVec4
	TexCoord       wireVec2
}

type wireLightmass struct {
	_      struct{} `cbor:",toarray"`
	Flags  uint8
	Values [4]float32
}

type wireNode struct {
	_              struct{} `cbor:",toarray"`
	Plane          wireVec4
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

type wireVert struct {
	_              struct{} `cbor:",toarray"`
	Point          int32
	Side           int32
	ShadowTexCoord wireVec2
	BackfaceShadow wireVec2
}

// Lightmass flag bits.
const (
	lightmassShadowIndirectOnly = 1 << iota
	lightmassEmissiveForStatic
	lightmassTwoSided
	lightmassVertexNormalGather
)

func vec2(v math32.Vector2) wireVec2 { return wireVec2{v.X, v.Y} }
func vec3(v math32.Vector3) wireVec3 { return wireVec3{v.X, v.Y, v.Z} }
func vec4(v math32.Vector4) wireVec4 { return wireVec4{v.X, v.Y, v.Z, v.W} }

func (v wireVec2) local() math32.Vector2 { return math32.Vector2{X: v[0], Y: v[1]} }
func (v wireVec3) local() math32.Vector3 { return math32.Vec3(v[0], v[1], v[2]) }
func (v wireVec4) local() math32.Vector4 { return math32.Vec4(v[0], v[1], v[2], v[3]) }

// mapSlice applies f to every element, preserving nil.
func mapSlice[T, U any](in []T, f func(T) U) []U {
	if in == nil {
		return nil
	}
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

func identity[T any](v T) T { return v }

type wireEncoder struct {
	resolver Resolver
	unsynced int
}

func (e *wireEncoder) model(m *Model) *wireModel {
	box := m.Bounds.Box
	return &wireModel{
		Bounds: [7]float32{
			box.Min.X, box.Min.Y, box.Min.Z,
			box.Max.X, box.Max.Y, box.Max.Z,
			m.Bounds.SphereRadius,
		},
		Surfaces:          mapSlice(m.Surfaces, e.surface),
		NumSharedSides:    m.NumSharedSides,
		Polys:             mapSlice(m.Polys, e.poly),
		RootOutside:       m.RootOutside,
		Linked:            m.Linked,
		NumUniqueVertices: m.NumUniqueVertices,
		Vertices:          mapSlice(m.Vertices, encodeVertex),
		Lightmass:         mapSlice(m.Lightmass, encodeLightmass),
		Vectors:           mapSlice(m.Vectors, vec3),
		Points:            mapSlice(m.Points, vec3),
		Nodes:             mapSlice(m.Nodes, encodeNode),
		Verts:             mapSlice(m.Verts, encodeVert),
		LeafHulls:         mapSlice(m.LeafHulls, identity[int32]),
		Leaves:            mapSlice(m.Leaves, func(l Leaf) int32 { return l.Zone }),
	}
}

func (e *wireEncoder) surface(s Surface) wireSurface {
	return wireSurface{
		Material:       assetRef(s.Material),
		PolyFlags:      s.PolyFlags,
		Base:           s.Base,
		Normal:         s.Normal,
		TextureU:       s.TextureU,
		TextureV:       s.TextureV,
		BrushPoly:      s.BrushPoly,
		Actor:          e.brush(s.Actor),
		Plane:          vec4(s.Plane),
		LightMapScale:  s.LightMapScale,
		LightmassIndex: s.LightmassIndex,
	}
}

func (e *wireEncoder) poly(p Poly) wirePoly {
	return wirePoly{
		Vertices:      mapSlice(p.Vertices, vec3),
		Base:          vec3(p.Base),
		Normal:        vec3(p.Normal),
		TextureU:      vec3(p.TextureU),
		TextureV:      vec3(p.TextureV),
		Material:      assetRef(p.Material),
		PolyFlags:     p.PolyFlags,
		Actor:         e.brush(p.Actor),
		ItemName:      p.ItemName,
		LightMapScale: p.LightMapScale,
	}
}

func (e *wireEncoder) brush(local LocalRef) wireRef {
	if local == 0 {
		return wireRef{Kind: RefNull}
	}
	ref := Reference{Kind: RefUnsynced}
	if e.resolver != nil {
		ref = e.resolver.Reference(local)
	}
	if ref.Kind == RefUnsynced {
		e.unsynced++
	}
	return wireRef{Kind: ref.Kind, Object: uint32(ref.Object), Path: ref.Path}
}

func assetRef(path string) wireRef {
	if path == "" {
		return wireRef{Kind: RefNull}
	}
	return wireRef{Kind: RefAsset, Path: path}
}

func encodeVertex(v Vertex) wireVertex {
	return wireVertex{
		Position:       vec3(v.Position),
		ShadowTexCoord: vec2(v.ShadowTexCoord),
		TangentX:       vec4(v.TangentX),
		TangentZ:       vec4(v.TangentZ),
		TexCoord:       vec2(v.TexCoord),
	}
}

func encodeLightmass(l LightmassSettings) wireLightmass {
	var flags uint8
	if l.ShadowIndirectOnly {
		flags |= lightmassShadowIndirectOnly
	}
	if l.UseEmissiveForStaticLighting {
		flags |= lightmassEmissiveForStatic
	}
	if l.UseTwoSidedLighting {
		flags |= lightmassTwoSided
	}
	if l.UseVertexNormalForHemisphereGather {
		flags |= lightmassVertexNormalGather
	}
	return wireLightmass{
		Flags: flags,
		Values: [4]float32{
			l.EmissiveLightFalloffExponent,
			l.EmissiveLightExplicitInfluenceRadius,
			l.EmissiveBoost,
			l.DiffuseBoost,
		},
	}
}

func encodeNode(n Node) wireNode {
	return wireNode{
		Plane:          vec4(n.Plane),
		VertPool:       n.VertPool,
		Surface:        n.Surface,
		VertexIndex:    n.VertexIndex,
		NumVertices:    n.NumVertices,
		Flags:          n.Flags,
		Back:           n.Back,
		Front:          n.Front,
		Coplanar:       n.Coplanar,
		CollisionBound: n.CollisionBound,
		Zone:           n.Zone,
		Leaf:           n.Leaf,
	}
}

func encodeVert(v Vert) wireVert {
	return wireVert{
		Point:          v.Point,
		Side:           v.Side,
		ShadowTexCoord: vec2(v.ShadowTexCoord),
		BackfaceShadow: vec2(v.BackfaceShadow),
	}
}

type wireDecoder struct {
	resolver   Resolver
	previous   *Model
	unresolved int
}

func (d *wireDecoder) model(w *wireModel) *Model {
	m := &Model{
		Bounds: Bounds{
			Box:          math32.B3(w.Bounds[0], w.Bounds[1], w.Bounds[2], w.Bounds[3], w.Bounds[4], w.Bounds[5]),
			SphereRadius: w.Bounds[6],
		},
		NumSharedSides:    w.NumSharedSides,
		RootOutside:       w.RootOutside,
		Linked:            w.Linked,
		NumUniqueVertices: w.NumUniqueVertices,
		Vertices:          mapSlice(w.Vertices, decodeVertex),
		Lightmass:         mapSlice(w.Lightmass, decodeLightmass),
		Vectors:           mapSlice(w.Vectors, wireVec3.local),
		Points:            mapSlice(w.Points, wireVec3.local),
		Nodes:             mapSlice(w.Nodes, decodeNode),
		Verts:             mapSlice(w.Verts, decodeVert),
		LeafHulls:         mapSlice(w.LeafHulls, identity[int32]),
		Leaves:            mapSlice(w.Leaves, func(zone int32) Leaf { return Leaf{Zone: zone} }),
	}
	if w.Surfaces != nil {
		m.Surfaces = make([]Surface, len(w.Surfaces))
		for i, s := range w.Surfaces {
			m.Surfaces[i] = Surface{
				Material:       s.Material.Path,
				PolyFlags:      s.PolyFlags,
				Base:           s.Base,
				Normal:         s.Normal,
				TextureU:       s.TextureU,
				TextureV:       s.TextureV,
				BrushPoly:      s.BrushPoly,
				Actor:          d.brush(s.Actor, d.previousSurfaceActor(i)),
				Plane:          s.Plane.local(),
				LightMapScale:  s.LightMapScale,
				LightmassIndex: s.LightmassIndex,
			}
		}
	}
	if w.Polys != nil {
		m.Polys = make([]Poly, len(w.Polys))
		for i, p := range w.Polys {
			m.Polys[i] = Poly{
				Vertices:      mapSlice(p.Vertices, wireVec3.local),
				Base:          p.Base.local(),
				Normal:        p.Normal.local(),
				TextureU:      p.TextureU.local(),
				TextureV:      p.TextureV.local(),
				Material:      p.Material.Path,
				PolyFlags:     p.PolyFlags,
				Actor:         d.brush(p.Actor, d.previousPolyActor(i)),
				ItemName:      p.ItemName,
				LightMapScale: p.LightMapScale,
			}
		}
	}
	return m
}

func (d *wireDecoder) previousSurfaceActor(i int) LocalRef {
	if d.previous != nil && i < len(d.previous.Surfaces) {
		return d.previous.Surfaces[i].Actor
	}
	return 0
}

func (d *wireDecoder) previousPolyActor(i int) LocalRef {
	if d.previous != nil && i < len(d.previous.Polys) {
		return d.previous.Polys[i].Actor
	}
	return 0
}

func (d *wireDecoder) brush(ref wireRef, previous LocalRef) LocalRef {
	switch ref.Kind {
	case RefUnsynced:
		return previous
	case RefObject:
		if d.resolver == nil {
			d.unresolved++
			return 0
		}
		local, ok := d.resolver.Resolve(Reference{Kind: RefObject, Object: replication.ObjectID(ref.Object)})
		if !ok {
			d.unresolved++
			return 0
		}
		return local
	default:
		return 0
	}
}

func decodeVertex(v wireVertex) Vertex {
	return Vertex{
		Position:       v.Position.local(),
		ShadowTexCoord: v.ShadowTexCoord.local(),
		TangentX:       v.TangentX.local(),
		TangentZ:       v.TangentZ.local(),
		TexCoord:       v.TexCoord.local(),
	}
}

func decodeLightmass(w wireLightmass) LightmassSettings {
	return LightmassSettings{
		ShadowIndirectOnly:                   w.Flags&lightmassShadowIndirectOnly != 0,
		UseEmissiveForStaticLighting:         w.Flags&lightmassEmissiveForStatic != 0,
		UseTwoSidedLighting:                  w.Flags&lightmassTwoSided != 0,
		UseVertexNormalForHemisphereGather:   w.Flags&lightmassVertexNormalGather != 0,
		EmissiveLightFalloffExponent:         w.Values[0],
		EmissiveLightExplicitInfluenceRadius: w.Values[1],
		EmissiveBoost:                        w.Values[2],
		DiffuseBoost:                         w.Values[3],
	}
}

func decodeNode(w wireNode) Node {
	return Node{
		Plane:          w.Plane.local(),
		VertPool:       w.VertPool,
		Surface:        w.Surface,
		VertexIndex:    w.VertexIndex,
		NumVertices:    w.NumVertices,
		Flags:          w.Flags,
		Back:           w.Back,
		Front:          w.Front,
		Coplanar:       w.Coplanar,
		CollisionBound: w.CollisionBound,
		Zone:           w.Zone,
		Leaf:           w.Leaf,
	}
}

func decodeVert(w wireVert) Vert {
	return Vert{
		Point:          w.Point,
		Side:           w.Side,
		ShadowTexCoord: w.ShadowTexCoord.local(),
		BackfaceShadow: w.BackfaceShadow.local(),
	}
}
