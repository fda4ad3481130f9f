// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire provides the per-role socket connections a kernel
// session is built from.
//
// A kernel exposes five sockets. Four carry signed JSON envelopes
// (shell, stdin, control as request/reply over DEALER sockets; iopub
// as a SUB subscription to every topic) and are wrapped by
// [Connection]. The heartbeat socket is a REQ socket whose peer echoes
// raw bytes, wrapped by [HeartbeatConnection]. The two types stay
// distinct because their framing differs.
//
// Each Connection runs one reader goroutine that pumps frame sets from
// the socket into an unbuffered channel. Receive selects on that
// channel and the caller's context, so a caller-imposed deadline
// abandons the wait without consuming the pending frame set. A REQ
// socket cannot receive before it has sent, so the heartbeat socket has
// no pump: each probe sends and then reads in lockstep. There is no
// dial retry and no reconnection; a failed connect is a
// [*ConnectError] and a closed connection, from either side, surfaces
// as [ErrConnectionClosed].
//
// Sockets come from a [Transport]. [ZMQTransport] opens real ZeroMQ
// sockets; wiretest.Transport is an in-memory fake with per-role
// failure injection.
package wire
