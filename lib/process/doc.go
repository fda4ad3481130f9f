// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by runtimed
// binaries: reporting the error returned from run() when the
// structured logger may not exist yet, and exiting non-zero.
package process
