// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for scenesync binaries.
//
// [Version] is set manually for releases and may be overridden with
// -ldflags -X. The commit and dirty flag come from the VCS stamp the Go
// toolchain embeds in module builds, and read "unknown" in test
// binaries and builds made outside a checkout.
//
//   - [Info] -- "0.1.0-dev (abc1234, 2026-02-10T...)" for --version
//   - [Full] -- Info plus Go version and GOOS/GOARCH
package version
