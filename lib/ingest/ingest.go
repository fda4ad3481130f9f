// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest drains one runtime's iopub stream into the ledger.
//
// A [Loop] reads one envelope, appends it, and only then reads the
// next, so at most one envelope is in flight. A failed append is
// logged at error level and the envelope is dropped; the loop carries
// on with the next one. A failed read ends the loop with
// [ErrRuntimeLost]. The kernel's shutdown signal is appended like any
// other envelope and then ends the loop cleanly.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/ledger"
)

// ErrRuntimeLost wraps the read failure that ended a loop.
var ErrRuntimeLost = errors.New("ingest: runtime lost")

// Source yields a runtime's broadcast envelopes in arrival order.
// *session.Session implements it.
type Source interface {
	NextEvent(ctx context.Context) (*message.Envelope, error)
}

// Appender persists one envelope. *ledger.Ledger implements it.
type Appender interface {
	Append(ctx context.Context, runtimeID string, envelope *message.Envelope) (ledger.Record, error)
}

// Stats counts what a loop did.
type Stats struct {
	Received int
	Appended int
	Failed   int
}

// Loop ingests one runtime.
type Loop struct {
	runtimeID string
	source    Source
	appender  Appender
	logger    *slog.Logger
}

// New returns a loop recording source's envelopes under runtimeID.
func New(runtimeID string, source Source, appender Appender, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		runtimeID: runtimeID,
		source:    source,
		appender:  appender,
		logger:    logger.With("runtime_id", runtimeID),
	}
}

// Run ingests until the shutdown signal (nil), ctx ends (ctx.Err()),
// or a read fails (ErrRuntimeLost wrapping the cause).
func (l *Loop) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	for {
		envelope, err := l.source.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			l.logger.Warn("ingestion ended: runtime lost", "error", err, "received", stats.Received)
			return stats, fmt.Errorf("%w: %s: %w", ErrRuntimeLost, l.runtimeID, err)
		}
		stats.Received++

		if _, err := l.appender.Append(ctx, l.runtimeID, envelope); err != nil {
			stats.Failed++
			l.logger.Error("dropping envelope after failed append",
				"msg_id", envelope.Header.MsgID,
				"msg_type", envelope.Header.MsgType,
				"error", err,
			)
		} else {
			stats.Appended++
		}

		if message.IsShutdownSignal(envelope) {
			l.logger.Info("ingestion ended: kernel shut down",
				"received", stats.Received,
				"failed", stats.Failed,
			)
			return stats, nil
		}
	}
}
