// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
)

// ValueKind discriminates the payload of a [Value].
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindBool
	KindInt
	KindFloats
	KindBytes
	// KindRef points at another object by id.
	KindRef
	// KindUnsynced marks a reference to something that exists locally
	// but has no replicated object. Receivers leave their own value
	// unchanged.
	KindUnsynced
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloats:
		return "floats"
	case KindBytes:
		return "bytes"
	case KindRef:
		return "ref"
	case KindUnsynced:
		return "unsynced"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a typed property value. Only the field selected by Kind is
// meaningful; the zero Value is null.
type Value struct {
	Kind   ValueKind `cbor:"k"`
	Str    string    `cbor:"s,omitempty"`
	Bool   bool      `cbor:"b,omitempty"`
	Int    int64     `cbor:"i,omitempty"`
	Floats []float32 `cbor:"f,omitempty"`
	Bytes  []byte    `cbor:"d,omitempty"`
	Ref    ObjectID  `cbor:"r,omitempty"`
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }
func Floats(f ...float32) Value { return Value{Kind: KindFloats, Floats: slices.Clone(f)} }
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: bytes.Clone(b)} }
func Ref(id ObjectID) Value { return Value{Kind: KindRef, Ref: id} }
func Unsynced() Value { return Value{Kind: KindUnsynced} }
func (v Value) IsNull() bool { return v.Kind == KindNull }
func (v Value) IsUnsynced() bool { return v.Kind == KindUnsynced }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindBool:
		return v.Bool == other.Bool
	case KindInt:
		return v.Int == other.Int
	case KindFloats:
		return slices.Equal(v.Floats, other.Floats)
	case KindBytes:
		return bytes.Equal(v.Bytes, other.Bytes)
	case KindRef:
		return v.Ref == other.Ref
	default:
		return true
	}
}

// Clone returns a copy that shares no backing storage with v.
func (v Value) Clone() Value {
	v.Floats = slices.Clone(v.Floats)
	v.Bytes = bytes.Clone(v.Bytes)
	return v
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindBool:
		return fmt.Sprint(v.Bool)
	case KindInt:
		return fmt.Sprint(v.Int)
	case KindFloats:
		return fmt.Sprint(v.Floats)
	case KindBytes:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes))
	case KindRef:
		return fmt.Sprintf("@%d", v.Ref)
	default:
		return v.Kind.String()
	}
}

// Properties is an object's property dictionary.
type Properties map[string]Value

// Clone deep-copies the dictionary.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	clone := make(Properties, len(p))
	for key, value := range p {
		clone[key] = value.Clone()
	}
	return clone
}

// Keys returns the property names in sorted order.
func (p Properties) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Standard property names shared by the engine and its collaborators.
const (
	PropName   = "name"
	PropClass  = "class"
	PropLabel  = "label"
	PropFolder = "folder"
	PropIsRoot = "is_root"
	// PropLocation, PropRotation and PropScale live on root component
	// objects and hold float vectors.
	PropLocation = "location"
	PropRotation = "rotation"
	PropScale    = "scale"
	// PropGeometry holds an encoded geometry blob on model objects.
	PropGeometry = "geometry"
)
