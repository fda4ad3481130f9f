// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/bureau-foundation/runtimed/lib/netutil"
)

// link is the dialed socket behind a Connection: the reader pump, send
// serialization, and idempotent close.
type link struct {
	role     Role
	endpoint string
	socket   Socket
	logger   *slog.Logger

	sendMu sync.Mutex

	// incoming carries frame sets from the pump. It is closed when
	// the pump exits, after recvErr is set.
	incoming chan [][]byte
	recvErr  error

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// openSocket opens and dials role's socket, subscribing iopub to every
// topic.
func openSocket(ctx context.Context, transport Transport, role Role, endpoint string) (Socket, error) {
	socket, err := transport.Open(ctx, role)
	if err != nil {
		return nil, &ConnectError{Role: role, Endpoint: endpoint, Err: err}
	}
	if err := socket.Dial(endpoint); err != nil {
		socket.Close()
		return nil, &ConnectError{Role: role, Endpoint: endpoint, Err: err}
	}
	if role == IOPub {
		if err := socket.SetOption(zmq4.OptionSubscribe, ""); err != nil {
			socket.Close()
			return nil, &ConnectError{Role: role, Endpoint: endpoint, Err: fmt.Errorf("subscribing: %w", err)}
		}
	}
	return socket, nil
}

func dial(ctx context.Context, transport Transport, role Role, endpoint string, logger *slog.Logger) (*link, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	socket, err := openSocket(ctx, transport, role, endpoint)
	if err != nil {
		return nil, err
	}

	l := &link{
		role:     role,
		endpoint: endpoint,
		socket:   socket,
		logger:   logger.With("role", role.String(), "endpoint", endpoint),
		incoming: make(chan [][]byte),
		closed:   make(chan struct{}),
	}
	go l.pump()
	return l, nil
}

func (l *link) pump() {
	defer close(l.incoming)
	for {
		msg, err := l.socket.Recv()
		if err != nil {
			select {
			case <-l.closed:
				l.recvErr = ErrClosed
			default:
				if !netutil.IsExpectedCloseError(err) {
					l.logger.Warn("socket receive failed", "error", err)
				}
				l.recvErr = fmt.Errorf("%w: %s: %v", ErrConnectionClosed, l.role, err)
			}
			return
		}
		select {
		case l.incoming <- msg.Frames:
		case <-l.closed:
			l.recvErr = ErrClosed
			return
		}
	}
}

func (l *link) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *link) send(frames [][]byte) error {
	if l.isClosed() {
		return ErrClosed
	}
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if err := l.socket.SendMulti(zmq4.NewMsgFrom(frames...)); err != nil {
		if l.isClosed() {
			return ErrClosed
		}
		return fmt.Errorf("%w: %s send: %v", ErrConnectionClosed, l.role, err)
	}
	return nil
}

func (l *link) receive(ctx context.Context) ([][]byte, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	select {
	case frames, ok := <-l.incoming:
		if !ok {
			return nil, l.recvErr
		}
		return frames, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *link) close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.closeErr = l.socket.Close()
		if netutil.IsExpectedCloseError(l.closeErr) {
			l.closeErr = nil
		}
	})
	return l.closeErr
}
