// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/runtimed/lib/clock"
	"github.com/bureau-foundation/runtimed/lib/codec"
	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS disorganized_messages (
	id              TEXT PRIMARY KEY,
	msg_id          TEXT NOT NULL,
	msg_type        TEXT NOT NULL,
	content         TEXT NOT NULL,
	metadata        TEXT NOT NULL,
	runtime_id      TEXT NOT NULL,
	parent_msg_id   TEXT,
	parent_msg_type TEXT,
	created_at      INTEGER NOT NULL,
	buffers         BLOB
);
CREATE INDEX IF NOT EXISTS disorganized_messages_runtime
	ON disorganized_messages (runtime_id);
`

// Record is one stored envelope.
type Record struct {
	ID        string
	MsgID     string
	MsgType   string
	Content   json.RawMessage
	Metadata  json.RawMessage
	RuntimeID string

	// ParentMsgID and ParentMsgType are empty for uncorrelated
	// envelopes and stored as NULL.
	ParentMsgID   string
	ParentMsgType string

	CreatedAt time.Time
	Buffers   [][]byte
}

// AppendError is a failed write of one envelope. The envelope is not
// retried.
type AppendError struct {
	MessageID string
	Err       error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("ledger: appending message %s: %v", e.MessageID, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

// Config holds the parameters for opening a ledger.
type Config struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string

	// PoolSize defaults to sqlitepool.DefaultPoolSize.
	PoolSize int

	// Clock stamps created_at. Required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Ledger is the append-only message store.
type Ledger struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens or creates the ledger database.
func Open(cfg Config) (*Ledger, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("ledger: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("ledger: Logger is required")
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return &Ledger{pool: pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the pool, waiting for borrowed connections.
func (l *Ledger) Close() error {
	return l.pool.Close()
}

// Append stores envelope as a new record owned by runtimeID. Failures
// are *AppendError.
func (l *Ledger) Append(ctx context.Context, runtimeID string, envelope *message.Envelope) (Record, error) {
	record := Record{
		ID:            uuid.NewString(),
		MsgID:         envelope.Header.MsgID,
		MsgType:       envelope.Header.MsgType,
		Content:       orEmptyObject(envelope.Content),
		Metadata:      orEmptyObject(envelope.Metadata),
		RuntimeID:     runtimeID,
		ParentMsgID:   envelope.ParentID(),
		ParentMsgType: envelope.ParentType(),
		CreatedAt:     l.clock.Now(),
		Buffers:       envelope.Buffers,
	}
	if err := l.insert(ctx, record); err != nil {
		return Record{}, &AppendError{MessageID: record.MsgID, Err: err}
	}
	return record, nil
}

func (l *Ledger) insert(ctx context.Context, record Record) (err error) {
	buffers, err := codec.MarshalBuffers(record.Buffers)
	if err != nil {
		return fmt.Errorf("encoding buffers: %w", err)
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer l.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var buffersArg any
	if buffers != nil {
		buffersArg = buffers
	}
	return sqlitex.Execute(conn, `INSERT INTO disorganized_messages
		(id, msg_id, msg_type, content, metadata, runtime_id,
		 parent_msg_id, parent_msg_type, created_at, buffers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			record.ID,
			record.MsgID,
			record.MsgType,
			string(record.Content),
			string(record.Metadata),
			record.RuntimeID,
			nullable(record.ParentMsgID),
			nullable(record.ParentMsgType),
			record.CreatedAt.UnixNano(),
			buffersArg,
		},
	})
}

// Recent returns up to limit of the newest records for runtimeID, in
// insertion order. An empty runtimeID covers every runtime.
func (l *Ledger) Recent(ctx context.Context, runtimeID string, limit int) ([]Record, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent: %w", err)
	}
	defer l.pool.Put(conn)

	var records []Record
	err = sqlitex.Execute(conn, `SELECT id, msg_id, msg_type, content, metadata, runtime_id,
			parent_msg_id, parent_msg_type, created_at, buffers
		FROM disorganized_messages
		WHERE ? = '' OR runtime_id = ?
		ORDER BY rowid DESC
		LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{runtimeID, runtimeID, limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanRecord(stmt)
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: recent: %w", err)
	}
	slices.Reverse(records)
	return records, nil
}

// Count returns the number of records for runtimeID, or for every
// runtime when runtimeID is empty.
func (l *Ledger) Count(ctx context.Context, runtimeID string) (int, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	defer l.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, `SELECT count(*) FROM disorganized_messages
		WHERE ? = '' OR runtime_id = ?`, &sqlitex.ExecOptions{
		Args: []any{runtimeID, runtimeID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return count, nil
}

func scanRecord(stmt *sqlite.Stmt) (Record, error) {
	record := Record{
		ID:            stmt.ColumnText(0),
		MsgID:         stmt.ColumnText(1),
		MsgType:       stmt.ColumnText(2),
		Content:       json.RawMessage(stmt.ColumnText(3)),
		Metadata:      json.RawMessage(stmt.ColumnText(4)),
		RuntimeID:     stmt.ColumnText(5),
		ParentMsgID:   stmt.ColumnText(6),
		ParentMsgType: stmt.ColumnText(7),
		CreatedAt:     time.Unix(0, stmt.ColumnInt64(8)),
	}
	if !stmt.ColumnIsNull(9) {
		data := make([]byte, stmt.ColumnLen(9))
		stmt.ColumnBytes(9, data)
		buffers, err := codec.UnmarshalBuffers(data)
		if err != nil {
			return Record{}, fmt.Errorf("decoding buffers of %s: %w", record.ID, err)
		}
		record.Buffers = buffers
	}
	return record, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
