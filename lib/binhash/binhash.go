// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 keyed hash.
type Digest [32]byte

// Domain is a BLAKE3 key. Changing a domain's bytes invalidates every
// digest computed in it. Keys are readable ASCII, zero padded.
type Domain [32]byte

var (
	// GeometryDomain hashes encoded geometry blobs.
	GeometryDomain = Domain{
		's', 'c', 'e', 'n', 'e', 's', 'y', 'n', 'c', '.', 'g', 'e', 'o', 'm', 'e', 't',
		'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	// PropertyDomain hashes encoded property values.
	PropertyDomain = Domain{
		's', 'c', 'e', 'n', 'e', 's', 'y', 'n', 'c', '.', 'p', 'r', 'o', 'p', 'e', 'r',
		't', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// Sum returns the keyed hash of data in the given domain.
func Sum(domain Domain, data []byte) Digest {
	// NewKeyed only fails for keys that are not 32 bytes.
	hasher, err := blake3.NewKeyed(domain[:])
	if err != nil {
		panic("binhash: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// String returns the full hex encoding.
func (d Digest) String() string {
	return FormatDigest(d)
}

// Short returns the first 12 hex characters, for log and simulator
// output.
func (d Digest) Short() string {
	return FormatDigest(d)[:12]
}

// FormatDigest returns the hex-encoded form of a digest.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}
