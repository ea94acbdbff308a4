// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/scenesync/replication"
)

// ProtocolError reports a remote tree that breaks the shape the engine
// relies on. It is fatal: the engine leaves the session.
type ProtocolError struct {
	Object replication.ObjectID
	Name   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("reconcile: object %d (%q): %s", e.Object, e.Name, e.Reason)
}

// IsProtocolError reports whether err is a *ProtocolError.
func IsProtocolError(err error) bool {
	var protocolErr *ProtocolError
	return errors.As(err, &protocolErr)
}

func noParentError(object *replication.Object) *ProtocolError {
	return &ProtocolError{
		Object: object.ID(),
		Name:   object.Get(replication.PropName).Str,
		Reason: "actor object has no parent; actors must live under a level or a component",
	}
}
