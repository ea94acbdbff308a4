// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared binary encoding used by the sync core.
//
// Two things flow through it:
//
//   - Geometry blobs: a brush's full geometry model, stored as a single
//     replicated property value. The dirty check compares a freshly
//     encoded blob against the published one, so the encoding must be a
//     pure function of the model.
//   - Replication wire messages between a session and the in-process
//     server. Encoding every message means no state is shared by
//     reference between replicas.
//
// The CBOR encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Same logical data always produces identical bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Compression is a separate step with an explicit [Compression] tag so the
// tag can be recorded alongside the payload:
//
//	packed, tag, err := codec.Compress(data, codec.CompressionLZ4)
//	data, err = codec.Decompress(packed, tag, len(original))
//
// Types serialized here carry `cbor` struct tags. They are never
// marshaled to JSON.
package codec
