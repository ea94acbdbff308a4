// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name  string            `cbor:"name"`
	Count int               `cbor:"count"`
	Scale []float32         `cbor:"scale"`
	Tags  map[string]string `cbor:"tags,omitempty"`
}

func TestMarshalRoundTrip(t *testing.T) {
	original := sample{Name: "brush", Count: 3, Scale: []float32{1.5, -0.25, 1e-7}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sample
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != original.Name || decoded.Count != original.Count {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
	for i := range original.Scale {
		if decoded.Scale[i] != original.Scale[i] {
			t.Errorf("Scale[%d] = %v, want %v", i, decoded.Scale[i], original.Scale[i])
		}
	}
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	first := sample{Tags: map[string]string{"z": "1", "a": "2", "m": "3"}}
	second := sample{Tags: map[string]string{"m": "3", "z": "1", "a": "2"}}

	a, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		b, err := Marshal(second)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(a, b) {
			t.Fatal("equal maps encoded to different bytes")
		}
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var decoded sample
	if err := Unmarshal([]byte{0xff, 0x00}, &decoded); err == nil {
		t.Error("expected error decoding garbage")
	}
}
