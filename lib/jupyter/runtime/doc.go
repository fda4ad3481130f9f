// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime describes running kernels and finds them on disk.
//
// A kernel advertises itself with a JSON connection file naming its
// transport, address, five ports, signing key, and signature scheme.
// [ParseConnectionFile] validates one file against an embedded JSON
// schema and returns a [Descriptor]; [Discover] does the same for every
// kernel-*.json file in a directory.
//
// A Descriptor is read-only after parsing except for two scratch
// fields a session fills in as it learns about the kernel: a status
// label and the kernel_info_reply content. The signing key is held in
// locked memory and released by [Descriptor.Close].
package runtime
