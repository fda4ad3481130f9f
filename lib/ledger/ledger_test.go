// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/runtimed/lib/clock"
	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
)

func openTestLedger(t *testing.T) (*Ledger, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ledger, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "ledger.db"),
		Clock:  fakeClock,
		Logger: slog.Default(),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger, fakeClock
}

func envelope(msgID, msgType string, content string, parent *message.Header) *message.Envelope {
	return &message.Envelope{
		Header:       message.Header{MsgID: msgID, MsgType: msgType},
		ParentHeader: parent,
		Metadata:     json.RawMessage(`{}`),
		Content:      json.RawMessage(content),
	}
}

func TestOpenRequiresClockAndLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	if _, err := Open(Config{Path: path, Logger: slog.Default()}); err == nil {
		t.Error("Open without Clock succeeded")
	}
	if _, err := Open(Config{Path: path, Clock: clock.Real()}); err == nil {
		t.Error("Open without Logger succeeded")
	}
}

func TestAppendStoresEveryField(t *testing.T) {
	ledger, fakeClock := openTestLedger(t)
	ctx := context.Background()

	parent := &message.Header{MsgID: "request-1", MsgType: message.TypeExecuteRequest}
	event := envelope("event-1", message.TypeStream, `{"name":"stdout","text":"2\n"}`, parent)
	event.Buffers = [][]byte{{0xde, 0xad}, []byte("beef")}

	appended, err := ledger.Append(ctx, "runtime-a", event)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if appended.ID == "" || appended.ID == event.Header.MsgID {
		t.Errorf("row id = %q, want a generated id", appended.ID)
	}

	records, err := ledger.Recent(ctx, "runtime-a", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Recent returned %d records, want 1", len(records))
	}
	got := records[0]
	if got.ID != appended.ID || got.MsgID != "event-1" || got.MsgType != message.TypeStream {
		t.Errorf("record identity = %+v", got)
	}
	if got.RuntimeID != "runtime-a" || got.ParentMsgID != "request-1" || got.ParentMsgType != message.TypeExecuteRequest {
		t.Errorf("record linkage = %+v", got)
	}
	if string(got.Content) != `{"name":"stdout","text":"2\n"}` || string(got.Metadata) != `{}` {
		t.Errorf("record content = %s metadata = %s", got.Content, got.Metadata)
	}
	if !got.CreatedAt.Equal(fakeClock.Now()) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, fakeClock.Now())
	}
	if len(got.Buffers) != 2 || string(got.Buffers[1]) != "beef" {
		t.Errorf("Buffers = %q", got.Buffers)
	}
}

func TestAppendUncorrelatedStoresNullParent(t *testing.T) {
	ledger, _ := openTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.Append(ctx, "runtime-a", envelope("status-1", message.TypeStatus, `{"execution_state":"idle"}`, nil)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	records, err := ledger.Recent(ctx, "runtime-a", 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if records[0].ParentMsgID != "" || records[0].ParentMsgType != "" || records[0].Buffers != nil {
		t.Errorf("uncorrelated record = %+v", records[0])
	}

	conn, err := ledger.pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer ledger.pool.Put(conn)
	stmt := conn.Prep("SELECT parent_msg_id IS NULL, buffers IS NULL FROM disorganized_messages")
	defer stmt.Reset()
	if hasRow, err := stmt.Step(); err != nil || !hasRow {
		t.Fatalf("Step: %v, %v", hasRow, err)
	}
	if stmt.ColumnInt(0) != 1 || stmt.ColumnInt(1) != 1 {
		t.Error("empty parent and buffers not stored as NULL")
	}
}

func TestRecentOrderAndRuntimeFilter(t *testing.T) {
	ledger, fakeClock := openTestLedger(t)
	ctx := context.Background()

	for i := range 5 {
		runtimeID := "runtime-a"
		if i%2 == 1 {
			runtimeID = "runtime-b"
		}
		if _, err := ledger.Append(ctx, runtimeID, envelope(fmt.Sprintf("m%d", i), message.TypeStatus, `{}`, nil)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		fakeClock.Advance(time.Millisecond)
	}

	records, err := ledger.Recent(ctx, "runtime-a", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 || records[0].MsgID != "m2" || records[1].MsgID != "m4" {
		t.Errorf("Recent(runtime-a, 2) = %+v, want m2 then m4", records)
	}

	all, err := ledger.Recent(ctx, "", 100)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 5 || all[0].MsgID != "m0" {
		t.Errorf("Recent all returned %d records starting %q", len(all), all[0].MsgID)
	}

	for runtimeID, want := range map[string]int{"runtime-a": 3, "runtime-b": 2, "": 5, "runtime-c": 0} {
		count, err := ledger.Count(ctx, runtimeID)
		if err != nil {
			t.Fatalf("Count(%q): %v", runtimeID, err)
		}
		if count != want {
			t.Errorf("Count(%q) = %d, want %d", runtimeID, count, want)
		}
	}
}

func TestConcurrentAppends(t *testing.T) {
	ledger, _ := openTestLedger(t)
	ctx := context.Background()

	const runtimes, perRuntime = 4, 25
	var wg sync.WaitGroup
	errs := make(chan error, runtimes*perRuntime)
	for r := range runtimes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perRuntime {
				e := envelope(fmt.Sprintf("r%d-m%d", r, i), message.TypeStream, `{}`, nil)
				if _, err := ledger.Append(ctx, fmt.Sprintf("runtime-%d", r), e); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Append: %v", err)
	}

	count, err := ledger.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != runtimes*perRuntime {
		t.Errorf("Count = %d, want %d", count, runtimes*perRuntime)
	}
}

func TestAppendAfterCloseIsAppendError(t *testing.T) {
	ledger, _ := openTestLedger(t)
	ledger.Close()

	_, err := ledger.Append(context.Background(), "runtime-a", envelope("m1", message.TypeStatus, `{}`, nil))
	var appendErr *AppendError
	if !errors.As(err, &appendErr) {
		t.Fatalf("Append after Close = %v, want *AppendError", err)
	}
	if appendErr.MessageID != "m1" {
		t.Errorf("MessageID = %q, want m1", appendErr.MessageID)
	}
}
