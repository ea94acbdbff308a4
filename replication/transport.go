// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

// Transport carries encoded messages between one session and a server.
// Requests are synchronous: the server applies them before Roundtrip
// returns. Events for the session queue on the server side until
// drained.
type Transport interface {
	// Roundtrip sends an encoded request and returns the encoded reply.
	Roundtrip(request []byte) ([]byte, error)

	// Drain returns all encoded events queued since the previous call,
	// oldest first.
	Drain() [][]byte

	// Close disconnects without a leave request.
	Close() error
}
