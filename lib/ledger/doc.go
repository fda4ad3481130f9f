// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger is the append-only SQLite record of every envelope
// observed on a kernel's iopub stream.
//
// Each [Ledger.Append] writes one row in its own IMMEDIATE transaction,
// so a record is stored whole or not at all. Rows are never updated or
// deleted. Insertion order is arrival order on the broadcast channel,
// which may differ from the order in which the kernel produced the
// events. Row ids are random UUIDs; [Ledger.Recent] orders by SQLite
// rowid.
//
// The pool is shared by every ingestion loop in the process, so
// Append is safe for concurrent use; SQLite serializes the writers.
package ledger
