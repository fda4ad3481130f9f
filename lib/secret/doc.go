// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps kernel signing keys out of the Go heap.
//
// A connection file's "key" authenticates every envelope exchanged with
// the kernel. runtimed holds it for as long as the runtime is attached,
// so the descriptor stores it in a [Buffer]: an anonymous mmap region
// locked into RAM (mlock), excluded from core dumps (MADV_DONTDUMP),
// and zeroed on Close.
//
// Consumers that need the raw bytes (HMAC construction) take a short
// lived copy with [Buffer.Copy] and do not retain the Buffer's own
// slice.
package secret
