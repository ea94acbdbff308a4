// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads scenesync client settings.
//
// Configuration comes from a single file named by the SCENESYNC_CONFIG
// environment variable (via [Load]) or a --config flag (via [LoadFile]).
// There is no discovery and no per-key environment override.
//
// Files are YAML. Files ending in .json or .jsonc are accepted too:
// comments and trailing commas are stripped first, and the remaining JSON
// is read by the YAML decoder, so both formats share one set of field
// names.
//
// Every field has a default from [Default]; a file only needs the keys it
// changes. [Config.Validate] reports every problem at once.
//
// This package depends on no other scenesync packages.
package config
