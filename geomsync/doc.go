// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package geomsync replicates brush geometry.
//
// Each brush actor object carries one model child object whose geometry
// property holds the brush's encoded [geometry.Model]. The [Coordinator]
// batches local edits behind a short debounce, publishes a new blob
// only when its digest changed, and applies remote blobs as soon as they
// arrive. Applying remote geometry schedules a scene rebuild through the
// reconcile engine, which holds the rebuild off while a brush is being
// dragged.
package geomsync
