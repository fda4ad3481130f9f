// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

// DefaultScheme is used when a key is present but no scheme is named.
const DefaultScheme = "hmac-sha256"

var schemes = map[string]func() hash.Hash{
	"hmac-sha256": sha256.New,
	"hmac-sha224": sha256.New224,
	"hmac-sha512": sha512.New,
	"hmac-sha384": sha512.New384,
	"hmac-sha1":   sha1.New,
	"hmac-md5":    md5.New,
}

// Signer computes and verifies envelope signatures for one key and
// scheme. The zero value and a nil *Signer are both unsigned.
type Signer struct {
	key     []byte
	newHash func() hash.Hash
	scheme  string
}

// NewSigner returns a Signer for key under scheme. The key is copied.
// An empty key yields an unsigned Signer and the scheme is not
// checked.
func NewSigner(key []byte, scheme string) (*Signer, error) {
	if len(key) == 0 {
		return &Signer{}, nil
	}
	if scheme == "" {
		scheme = DefaultScheme
	}
	newHash, ok := schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("message: %w: %q", ErrUnsupportedScheme, scheme)
	}
	return &Signer{
		key:     append([]byte(nil), key...),
		newHash: newHash,
		scheme:  scheme,
	}, nil
}

// Enabled reports whether the signer has a key.
func (s *Signer) Enabled() bool {
	return s != nil && len(s.key) > 0
}

// Scheme returns the resolved scheme name, or "" when unsigned.
func (s *Signer) Scheme() string {
	if !s.Enabled() {
		return ""
	}
	return s.scheme
}

// Sign returns the hex digest over parts, or nil when unsigned.
func (s *Signer) Sign(parts ...[]byte) []byte {
	if !s.Enabled() {
		return nil
	}
	mac := hmac.New(s.newHash, s.key)
	for _, part := range parts {
		mac.Write(part)
	}
	sum := mac.Sum(nil)
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}

// Verify reports whether signature matches parts. An unsigned Signer
// accepts any signature.
func (s *Signer) Verify(signature []byte, parts ...[]byte) bool {
	if !s.Enabled() {
		return true
	}
	return hmac.Equal(signature, s.Sign(parts...))
}
