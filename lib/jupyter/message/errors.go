// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"errors"
	"fmt"
)

// Decode failure kinds. Every decode error is a *ProtocolError whose
// Unwrap returns one of these, so callers test with errors.Is.
var (
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrMissingDelimiter  = errors.New("missing <IDS|MSG> delimiter")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// ErrUnsupportedScheme is returned by NewSigner for a scheme it does
// not implement.
var ErrUnsupportedScheme = errors.New("unsupported signature scheme")

// ProtocolError describes a frame set that could not be decoded.
type ProtocolError struct {
	// Kind is ErrMalformedFrame, ErrMissingDelimiter, or
	// ErrSignatureMismatch.
	Kind error

	// Frame names the offending frame ("header", "content", ...), or
	// is empty when the problem is the frame set as a whole.
	Frame string

	Detail string
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Frame != "" && e.Detail != "":
		return fmt.Sprintf("message: %v: %s frame: %s", e.Kind, e.Frame, e.Detail)
	case e.Frame != "":
		return fmt.Sprintf("message: %v: %s frame", e.Kind, e.Frame)
	case e.Detail != "":
		return fmt.Sprintf("message: %v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("message: %v", e.Kind)
}

func (e *ProtocolError) Unwrap() error { return e.Kind }
