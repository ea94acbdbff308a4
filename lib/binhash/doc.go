// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes domain-separated BLAKE3 digests of encoded
// blobs.
//
// The geometry coordinator keeps the digest of the last blob it published
// for each brush and compares fresh encodings against it, so an unchanged
// model never produces a network write. The simulator prints short
// digests to identify geometry state across replicas.
//
// Each [Domain] is a fixed 32-byte BLAKE3 key. The same bytes hashed in
// two domains give unrelated digests.
package binhash
