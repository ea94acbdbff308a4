// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"strings"
	"testing"
)

func TestSumDeterministic(t *testing.T) {
	data := []byte("brush geometry")
	if Sum(GeometryDomain, data) != Sum(GeometryDomain, data) {
		t.Error("same input produced different digests")
	}
	if Sum(GeometryDomain, data) == Sum(GeometryDomain, []byte("brush geometrY")) {
		t.Error("different input produced the same digest")
	}
}

func TestSumDomainSeparation(t *testing.T) {
	data := []byte("payload")
	if Sum(GeometryDomain, data) == Sum(PropertyDomain, data) {
		t.Error("domains produced identical digests")
	}
}

func TestFormatDigest(t *testing.T) {
	digest := Sum(GeometryDomain, []byte("x"))
	text := FormatDigest(digest)
	if len(text) != 64 {
		t.Fatalf("FormatDigest length = %d, want 64", len(text))
	}
	if !strings.HasPrefix(text, digest.Short()) {
		t.Errorf("Short %q is not a prefix of %q", digest.Short(), text)
	}
}
