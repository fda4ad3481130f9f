// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Role identifies one of a kernel's five sockets.
type Role int

const (
	Shell Role = iota
	IOPub
	Stdin
	Control
	Heartbeat
)

// Roles lists every role in attach order: the broadcast subscription
// first, then the request/reply sockets, then heartbeat.
var Roles = []Role{IOPub, Shell, Stdin, Control, Heartbeat}

func (r Role) String() string {
	switch r {
	case Shell:
		return "shell"
	case IOPub:
		return "iopub"
	case Stdin:
		return "stdin"
	case Control:
		return "control"
	case Heartbeat:
		return "heartbeat"
	}
	return "unknown"
}
