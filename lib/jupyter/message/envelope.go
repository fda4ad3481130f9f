// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/runtimed/lib/clock"
)

// ProtocolVersion is the header version runtimed sends.
const ProtocolVersion = "5.3"

// Delimiter separates routing identities from the signed frames.
var Delimiter = []byte("<IDS|MSG>")

var emptyObject = json.RawMessage("{}")

// Header identifies one envelope.
type Header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username"`

	// Date is the RFC 3339 creation timestamp. It is kept as the
	// sender's string so a decoded header re-encodes unchanged.
	Date    string `json:"date"`
	Version string `json:"version"`
}

// Envelope is one protocol message.
type Envelope struct {
	// Identities are the routing frames preceding the delimiter. For
	// a broadcast subscription the first identity is the topic. They
	// are retained but never interpreted.
	Identities [][]byte

	Header Header

	// ParentHeader is the header of the request this envelope
	// answers, or nil when uncorrelated. Nil encodes as "{}".
	ParentHeader *Header

	Metadata json.RawMessage
	Content  json.RawMessage
	Buffers  [][]byte
}

// RepliesTo reports whether e answers the request whose header is
// request.
func (e *Envelope) RepliesTo(request Header) bool {
	return e.ParentHeader != nil && e.ParentHeader.MsgID == request.MsgID
}

// ParentType returns the parent message type, or "" when uncorrelated.
func (e *Envelope) ParentType() string {
	if e.ParentHeader == nil {
		return ""
	}
	return e.ParentHeader.MsgType
}

// ParentID returns the parent message id, or "" when uncorrelated.
func (e *Envelope) ParentID() string {
	if e.ParentHeader == nil {
		return ""
	}
	return e.ParentHeader.MsgID
}

// Origin stamps new envelopes with a session id, a username, and the
// current time from Clock.
type Origin struct {
	Session  string
	Username string
	Clock    clock.Clock
}

// NewOrigin returns an Origin with a fresh session id.
func NewOrigin(username string, clk clock.Clock) *Origin {
	return &Origin{
		Session:  uuid.NewString(),
		Username: username,
		Clock:    clk,
	}
}

// Construct builds a fresh envelope of msgType with a new unique id.
// content may be a json.RawMessage, which is used as-is, or any value
// encoding to a JSON object; nil becomes "{}". When parent is non-nil
// the envelope is correlated to it.
func (o *Origin) Construct(msgType string, content any, parent *Header) (*Envelope, error) {
	raw, err := contentJSON(content)
	if err != nil {
		return nil, fmt.Errorf("message: encoding %s content: %w", msgType, err)
	}
	var parentCopy *Header
	if parent != nil {
		copied := *parent
		parentCopy = &copied
	}
	return &Envelope{
		Header: Header{
			MsgID:    uuid.NewString(),
			MsgType:  msgType,
			Session:  o.Session,
			Username: o.Username,
			Date:     o.Clock.Now().UTC().Format(time.RFC3339Nano),
			Version:  ProtocolVersion,
		},
		ParentHeader: parentCopy,
		Metadata:     emptyObject,
		Content:      raw,
	}, nil
}

func contentJSON(content any) (json.RawMessage, error) {
	switch value := content.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		if !json.Valid(value) {
			return nil, fmt.Errorf("invalid JSON")
		}
		return value, nil
	default:
		return json.Marshal(value)
	}
}

// Encode returns the frame set for e:
// identities, delimiter, signature, the four JSON parts, buffers.
// The signature frame is empty when signer is unsigned.
func (e *Envelope) Encode(signer *Signer) ([][]byte, error) {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return nil, fmt.Errorf("message: encoding header: %w", err)
	}
	parent := []byte(emptyObject)
	if e.ParentHeader != nil {
		if parent, err = json.Marshal(e.ParentHeader); err != nil {
			return nil, fmt.Errorf("message: encoding parent header: %w", err)
		}
	}
	metadata := orEmpty(e.Metadata)
	content := orEmpty(e.Content)

	frames := make([][]byte, 0, len(e.Identities)+6+len(e.Buffers))
	frames = append(frames, e.Identities...)
	frames = append(frames, Delimiter, signer.Sign(header, parent, metadata, content))
	frames = append(frames, header, parent, metadata, content)
	frames = append(frames, e.Buffers...)
	return frames, nil
}

func orEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return emptyObject
	}
	return raw
}

// Decode parses a frame set produced by Encode or by a kernel. When
// signer has a key the signature is verified over the raw JSON frames
// before anything is parsed.
func Decode(frames [][]byte, signer *Signer) (*Envelope, error) {
	delimiter := -1
	for i, frame := range frames {
		if bytes.Equal(frame, Delimiter) {
			delimiter = i
			break
		}
	}
	if delimiter < 0 {
		return nil, &ProtocolError{Kind: ErrMissingDelimiter, Detail: fmt.Sprintf("%d frames", len(frames))}
	}
	signed := frames[delimiter+1:]
	if len(signed) < 5 {
		return nil, &ProtocolError{
			Kind:   ErrMalformedFrame,
			Detail: fmt.Sprintf("need signature and 4 JSON frames after delimiter, have %d", len(signed)),
		}
	}
	signature, parts := signed[0], signed[1:5]
	if !signer.Verify(signature, parts...) {
		return nil, &ProtocolError{Kind: ErrSignatureMismatch, Frame: "signature"}
	}

	envelope := &Envelope{
		Metadata: json.RawMessage(parts[2]),
		Content:  json.RawMessage(parts[3]),
	}
	if delimiter > 0 {
		envelope.Identities = frames[:delimiter]
	}
	if len(signed) > 5 {
		envelope.Buffers = signed[5:]
	}

	if err := json.Unmarshal(parts[0], &envelope.Header); err != nil {
		return nil, &ProtocolError{Kind: ErrMalformedFrame, Frame: "header", Detail: err.Error()}
	}
	if envelope.Header.MsgType == "" {
		return nil, &ProtocolError{Kind: ErrMalformedFrame, Frame: "header", Detail: "msg_type is empty"}
	}
	parent, err := decodeParent(parts[1])
	if err != nil {
		return nil, &ProtocolError{Kind: ErrMalformedFrame, Frame: "parent_header", Detail: err.Error()}
	}
	envelope.ParentHeader = parent
	if !isObject(parts[2]) {
		return nil, &ProtocolError{Kind: ErrMalformedFrame, Frame: "metadata", Detail: "not a JSON object"}
	}
	if !isObject(parts[3]) {
		return nil, &ProtocolError{Kind: ErrMalformedFrame, Frame: "content", Detail: "not a JSON object"}
	}
	return envelope, nil
}

func decodeParent(frame []byte) (*Header, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	var parent Header
	if err := json.Unmarshal(frame, &parent); err != nil {
		return nil, err
	}
	return &parent, nil
}

func isObject(frame []byte) bool {
	trimmed := bytes.TrimSpace(frame)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
