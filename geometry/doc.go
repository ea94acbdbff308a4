// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package geometry holds the brush geometry model and its blob codec.
//
// A brush's complete geometry (bounds, surfaces, source polygons, vertex
// buffer, lightmass settings and the BSP topology arrays) replicates as a
// single opaque property value. [Codec.Encode] turns a [Model] into that
// blob and [Codec.Decode] turns it back.
//
// Blob layout (little-endian):
//
//	magic(4) "SSGM"
//	version(2)
//	compression(1)      lib/codec Compression tag
//	uncompressedSize(4)
//	body                CBOR, compressed per the tag
//
// Encoding is deterministic: the same model always yields the same bytes,
// which lets the sync coordinator skip publishing unchanged geometry.
//
// Surfaces and polygons point at their owning brush and at a material.
// Materials travel as asset paths. Brush pointers travel as [Reference]
// values resolved through a [Resolver]: a replicated brush becomes a
// reference to its object id, and a brush with no replicated object
// becomes an explicit unsynced marker. Decoding an unsynced marker with
// [Codec.DecodeInto] keeps the receiver's current value.
package geometry
