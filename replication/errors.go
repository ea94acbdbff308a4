// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"errors"
	"fmt"
)

var (
	// ErrDisconnected is returned by session operations after the session
	// has left or been closed.
	ErrDisconnected = errors.New("replication: session disconnected")

	// ErrLocked is returned when a write targets an object locked by
	// another user. Nothing is sent.
	ErrLocked = errors.New("replication: object is locked by another user")

	// ErrNotSyncing is returned for network operations on an object that
	// has not been created on the server yet.
	ErrNotSyncing = errors.New("replication: object is not syncing")

	// ErrAlreadySyncing is returned when creating an object that already
	// exists on the server.
	ErrAlreadySyncing = errors.New("replication: object is already syncing")
)

// RejectedError is returned when the server refuses a request. Op names
// the request kind and Reason is the server's explanation.
type RejectedError struct {
	Op     string
	Object ObjectID
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("replication: server rejected %s of object %d: %s", e.Op, e.Object, e.Reason)
}

// IsRejected reports whether err is a *RejectedError.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
