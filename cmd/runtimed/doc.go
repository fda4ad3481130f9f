// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Runtimed watches a directory of kernel connection files, attaches a
// session to every kernel it finds, and records each kernel's iopub
// stream in the SQLite ledger.
//
// # Reconcile
//
// Every discovery interval the daemon rescans paths.runtime_dir. A new
// kernel-*.json file gets a session and one ingestion goroutine. A
// file that disappears has its session detached. When an ingestion
// loop ends because the kernel stopped answering, the runtime is
// marked lost and its session detached, but the entry stays until the
// connection file is removed: the daemon never reconnects on its own.
// A failed attach is attempted again on the next scan.
//
// # Liveness
//
// When session.heartbeat_interval is non-zero each attached kernel is
// probed on its heartbeat socket. A probe still unanswered at the next
// tick, or a probe that fails, sets the runtime's status to
// "unresponsive". The next answered probe sets it to "alive". Probing
// never detaches anything.
//
// # Shutdown
//
// SIGINT or SIGTERM detaches every session, waits for the ingestion
// goroutines, and closes the ledger.
package main
