// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session attaches to one running kernel over its five
// sockets and drives the request/reply, broadcast, and liveness
// patterns on them.
//
// [Attach] opens iopub, shell, stdin, control, and heartbeat in that
// order. If any step fails, every connection opened so far is closed
// before the [*AttachError] is returned, so a *Session value always has
// all five connections open until [Session.Detach].
//
// Requests ([Session.Execute], [Session.KernelInfo],
// [Session.Shutdown]) send one envelope and wait for the reply whose
// parent header carries the request's message id; replies to anything
// else are dropped. The wait has no timeout of its own; the caller's
// context bounds it, and cancelling the context leaves the next reply
// unconsumed on the connection.
//
// [Session.NextEvent] reads one iopub envelope in arrival order and
// [Session.Run] loops over it until the kernel signals shutdown.
//
// [Session.Detach] closes all five connections concurrently and waits
// at most the configured grace period. A Session is single-use: once
// detached it never attaches again.
package session
