// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
)

// Connection carries signed JSON envelopes on the shell, iopub, stdin,
// or control socket.
type Connection struct {
	link   *link
	signer *message.Signer
}

// Connect dials endpoint with a socket suited to role and starts the
// reader pump. The iopub socket subscribes to every topic. signer is
// used for every send and receive; nil means unsigned.
func Connect(ctx context.Context, transport Transport, role Role, endpoint string, signer *message.Signer, logger *slog.Logger) (*Connection, error) {
	if role == Heartbeat {
		return nil, fmt.Errorf("wire: heartbeat is not JSON-framed; use ConnectHeartbeat")
	}
	l, err := dial(ctx, transport, role, endpoint, logger)
	if err != nil {
		return nil, err
	}
	return &Connection{link: l, signer: signer}, nil
}

func (c *Connection) Role() Role       { return c.link.role }
func (c *Connection) Endpoint() string { return c.link.endpoint }

// Send encodes and writes e as one frame set.
func (c *Connection) Send(e *message.Envelope) error {
	frames, err := e.Encode(c.signer)
	if err != nil {
		return err
	}
	return c.link.send(frames)
}

// Receive blocks until a full frame set arrives and decodes it. It
// returns ctx.Err() when ctx ends first, ErrConnectionClosed when the
// socket stops delivering, ErrClosed (also an ErrConnectionClosed)
// after Close, or a
// *message.ProtocolError when the frame set does not decode.
func (c *Connection) Receive(ctx context.Context) (*message.Envelope, error) {
	frames, err := c.link.receive(ctx)
	if err != nil {
		return nil, err
	}
	envelope, err := message.Decode(frames, c.signer)
	if err != nil {
		return nil, fmt.Errorf("wire: %s: %w", c.link.role, err)
	}
	return envelope, nil
}

// Close closes the socket. Later calls return the first call's result.
func (c *Connection) Close() error { return c.link.close() }
