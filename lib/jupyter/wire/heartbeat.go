// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-zeromq/zmq4"

	"github.com/bureau-foundation/runtimed/lib/netutil"
)

// HeartbeatConnection is the raw-echo liveness socket. Probes are
// serialized: each one sends its payload and then reads the echo.
type HeartbeatConnection struct {
	endpoint string
	socket   Socket
	logger   *slog.Logger

	mu sync.Mutex
	// pending is the read of a probe whose context ended before the
	// echo arrived. The next probe drains it before sending.
	pending <-chan echo

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

type echo struct {
	frames [][]byte
	err    error
}

// ConnectHeartbeat dials the heartbeat endpoint.
func ConnectHeartbeat(ctx context.Context, transport Transport, endpoint string, logger *slog.Logger) (*HeartbeatConnection, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	socket, err := openSocket(ctx, transport, Heartbeat, endpoint)
	if err != nil {
		return nil, err
	}
	return &HeartbeatConnection{
		endpoint: endpoint,
		socket:   socket,
		logger:   logger.With("role", Heartbeat.String(), "endpoint", endpoint),
		closed:   make(chan struct{}),
	}, nil
}

func (h *HeartbeatConnection) Endpoint() string { return h.endpoint }

// Probe sends payload and waits for the peer to echo it. Any other
// reply is ErrEchoMismatch. If an earlier probe gave up waiting, its
// late echo is read and discarded first.
func (h *HeartbeatConnection) Probe(ctx context.Context, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isClosed() {
		return ErrClosed
	}

	if h.pending != nil {
		if _, err := h.await(ctx, h.pending); err != nil {
			return err
		}
	}

	if err := h.socket.SendMulti(zmq4.NewMsgFrom(payload)); err != nil {
		return h.failure("send", err)
	}
	reply := make(chan echo, 1)
	go func() {
		msg, err := h.socket.Recv()
		reply <- echo{frames: msg.Frames, err: err}
	}()
	h.pending = reply

	frames, err := h.await(ctx, reply)
	if err != nil {
		return err
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], payload) {
		return fmt.Errorf("%w: sent %d bytes, got %d frames", ErrEchoMismatch, len(payload), len(frames))
	}
	return nil
}

// await waits for the outstanding read. Must hold h.mu.
func (h *HeartbeatConnection) await(ctx context.Context, reply <-chan echo) ([][]byte, error) {
	select {
	case result := <-reply:
		h.pending = nil
		if result.err != nil {
			return nil, h.failure("receive", result.err)
		}
		return result.frames, nil
	case <-h.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HeartbeatConnection) failure(op string, err error) error {
	if h.isClosed() {
		return ErrClosed
	}
	if !netutil.IsExpectedCloseError(err) {
		h.logger.Warn("heartbeat "+op+" failed", "error", err)
	}
	return fmt.Errorf("%w: %s %s: %v", ErrConnectionClosed, Heartbeat, op, err)
}

func (h *HeartbeatConnection) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

// Close closes the socket, ending any probe in flight. Later calls
// return the first call's result.
func (h *HeartbeatConnection) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.closeErr = h.socket.Close()
		if netutil.IsExpectedCloseError(h.closeErr) {
			h.closeErr = nil
		}
	})
	return h.closeErr
}
