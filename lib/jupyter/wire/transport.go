// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-zeromq/zmq4"
)

// Socket is the subset of zmq4.Socket a connection drives.
type Socket interface {
	Dial(endpoint string) error
	SendMulti(msg zmq4.Msg) error
	Recv() (zmq4.Msg, error)
	SetOption(name string, value any) error
	Close() error
}

// Transport opens an undialed socket of the right kind for a role.
type Transport interface {
	Open(ctx context.Context, role Role) (Socket, error)
}

// ZMQTransport opens ZeroMQ sockets: SUB for iopub, REQ for heartbeat,
// DEALER for shell, stdin, and control. Dials are attempted once.
type ZMQTransport struct {
	// Logger receives zmq4's internal diagnostics at warn level. Nil
	// leaves zmq4's default logger in place.
	Logger *slog.Logger
}

func (t ZMQTransport) Open(ctx context.Context, role Role) (Socket, error) {
	options := []zmq4.Option{zmq4.WithDialerMaxRetries(0)}
	if t.Logger != nil {
		options = append(options, zmq4.WithLogger(slog.NewLogLogger(t.Logger.Handler(), slog.LevelWarn)))
	}

	// Sockets live until Close, not until the caller's context ends.
	ctx = context.WithoutCancel(ctx)
	switch role {
	case IOPub:
		return zmq4.NewSub(ctx, options...), nil
	case Heartbeat:
		return zmq4.NewReq(ctx, options...), nil
	case Shell, Stdin, Control:
		return zmq4.NewDealer(ctx, options...), nil
	}
	return nil, fmt.Errorf("wire: no socket type for role %s", role)
}
