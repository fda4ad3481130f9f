// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed means the connection stopped delivering,
	// whether the peer went away, the transport failed, or this side
	// closed it.
	ErrConnectionClosed = errors.New("wire: connection closed")

	// ErrClosed means Close was called on this connection. It matches
	// ErrConnectionClosed under errors.Is.
	ErrClosed = fmt.Errorf("%w: use of closed connection", ErrConnectionClosed)

	// ErrEchoMismatch means the heartbeat peer answered with bytes
	// other than the probe payload.
	ErrEchoMismatch = errors.New("wire: heartbeat echo mismatch")
)

// ConnectError is a transport failure while opening one role's socket.
type ConnectError struct {
	Role     Role
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("wire: connecting %s to %s: %v", e.Role, e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
