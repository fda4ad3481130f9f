// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds runtimed's CBOR configuration.
//
// Kernel envelopes are JSON on the wire and JSON in the ledger, but
// their optional raw buffers are arbitrary binary frames. The ledger
// stores them as a single CBOR array of byte strings, encoded with Core
// Deterministic Encoding (RFC 8949 §4.2) so equal buffer lists always
// produce equal column bytes.
package codec
