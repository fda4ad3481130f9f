// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite connection pool behind the
// runtimed ledger.
//
// It wraps zombiezen.com/go/sqlite/sqlitex with fixed pragmas:
//
//   - journal_mode=WAL so ledger reads never block ingestion writes.
//   - synchronous=NORMAL: committed records survive a daemon crash.
//   - busy_timeout=5000 so concurrent appends from several ingestion
//     loops wait for the write lock instead of failing with SQLITE_BUSY.
//   - temp_store=MEMORY.
//
// Connections are not safe for concurrent use. Each goroutine takes its
// own connection and puts it back:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
