// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package message implements the kernel wire-message envelope and its
// signed multipart encoding.
//
// An [Envelope] is one protocol message: a [Header], an optional parent
// header copied from the request it answers, a metadata object, a
// content object, and optional raw buffers. On the wire it becomes a
// sequence of frames:
//
//	[identity...] "<IDS|MSG>" signature header parent_header metadata content [buffer...]
//
// The signature is the lowercase hex HMAC of the four JSON frames,
// computed with the connection key under the algorithm named by the
// signature scheme. A [Signer] with no key produces an empty signature
// frame and skips verification on decode; with a key, a mismatch is a
// hard [ErrSignatureMismatch] failure.
//
// Correlation is by id only: a reply R answers request Q when
// R.ParentHeader.MsgID equals Q.Header.MsgID. See [Envelope.RepliesTo].
//
// Content stays as raw JSON on the envelope so that persistence and
// re-encoding are lossless. [Envelope.Decoded] interprets the message
// types runtimed acts on and returns [Opaque] for everything else.
package message
