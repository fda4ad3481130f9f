// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

// State is a session's lifecycle position. Sessions move forward only:
// Attaching, Attached, Detaching, Detached.
type State int

const (
	StateAttaching State = iota
	StateAttached
	StateDetaching
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	case StateDetached:
		return "detached"
	}
	return "unknown"
}
