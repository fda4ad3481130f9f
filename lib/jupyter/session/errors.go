// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
)

var (
	// ErrDetachTimeout means some connections were still closing when
	// the grace period ended. They finish closing in the background.
	ErrDetachTimeout = errors.New("session: detach grace period elapsed")

	// ErrNotAttached is returned by operations on a detached session.
	// Its connections are closed, so it matches wire.ErrConnectionClosed
	// under errors.Is.
	ErrNotAttached = fmt.Errorf("%w: session not attached", wire.ErrConnectionClosed)
)

// AttachError reports the attach step that failed. No connection from
// the failed attempt is left open.
type AttachError struct {
	RuntimeID string

	// Step is the role whose connection failed, or "signer" when the
	// key and scheme could not be used.
	Step string

	Err error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("session: attaching runtime %s: %s: %v", e.RuntimeID, e.Step, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }
