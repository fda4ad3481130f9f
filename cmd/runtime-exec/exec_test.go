// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/runtimed/lib/clock"
	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/jupyter/runtime"
	"github.com/bureau-foundation/runtimed/lib/jupyter/session"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire/wiretest"
)

func attach(t *testing.T) (*session.Session, *wiretest.Kernel) {
	t.Helper()
	descriptor, err := runtime.Parse([]byte(`{
		"shell_port": 1, "iopub_port": 2, "stdin_port": 3, "control_port": 4, "hb_port": 5,
		"ip": "127.0.0.1", "transport": "tcp", "key": "abc",
		"signature_scheme": "hmac-sha256", "kernel_name": "python3"
	}`))
	if err != nil {
		t.Fatalf("runtime.Parse: %v", err)
	}
	t.Cleanup(func() { descriptor.Close() })

	transport := wiretest.NewTransport()
	s, err := session.Attach(context.Background(), descriptor, session.Config{
		Transport: transport,
		Clock:     clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(func() { s.Detach() })
	kernel, err := wiretest.NewKernel(transport, descriptor)
	if err != nil {
		t.Fatalf("NewKernel: %v", err)
	}
	return s, kernel
}

// serveExecute answers execute requests by publishing outputs, then
// idle, then replying with reply.
func serveExecute(t *testing.T, kernel *wiretest.Kernel, reply message.ExecuteReply, outputs ...message.Content) {
	t.Helper()
	err := kernel.Serve(context.Background(), wire.Shell, func(request *message.Envelope) (string, any) {
		if request.Header.MsgType == message.TypeKernelInfoRequest {
			return message.TypeKernelInfoReply, message.KernelInfoReply{
				Status:                "ok",
				ProtocolVersion:       message.ProtocolVersion,
				Implementation:        "ipykernel",
				ImplementationVersion: "6.29.0",
				LanguageInfo:          map[string]any{"name": "python"},
			}
		}
		parent := &request.Header
		kernel.Publish(message.TypeStatus, message.Status{ExecutionState: message.StateBusy}, parent)
		// Another client's execution, and an earlier request from this
		// same session, still producing output.
		other := &message.Header{MsgID: "other-request", MsgType: message.TypeExecuteRequest, Session: "other-session"}
		kernel.Publish(message.TypeStream, message.Stream{Name: "stdout", Text: "not mine\n"}, other)
		earlier := request.Header
		earlier.MsgID = "earlier-request"
		kernel.Publish(message.TypeStream, message.Stream{Name: "stdout", Text: "stale\n"}, &earlier)
		kernel.Publish(message.TypeStatus, message.Status{ExecutionState: message.StateIdle}, &earlier)
		for _, output := range outputs {
			kernel.Publish(output.MessageType(), output, parent)
		}
		kernel.Publish(message.TypeStatus, message.Status{ExecutionState: message.StateIdle}, parent)
		return message.TypeExecuteReply, reply
	})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestExecutePrintsCorrelatedOutputs(t *testing.T) {
	s, kernel := attach(t)
	serveExecute(t, kernel, message.ExecuteReply{Status: "ok", ExecutionCount: 1},
		message.Stream{Name: "stdout", Text: "computing\n"},
		message.ExecuteResult{ExecutionCount: 1, Data: map[string]any{"text/plain": "2"}},
		message.DisplayData{Data: map[string]any{"text/plain": "<Figure>", "image/png": "..."}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	if err := execute(ctx, s, options{code: "1+1", kernelInfo: true}, &out); err != nil {
		t.Fatalf("execute: %v", err)
	}

	want := "kernel: ipykernel 6.29.0 (python, protocol 5.3)\n" +
		"computing\n" +
		"2\n" +
		"<Figure>\n" +
		"status: ok\n"
	if out.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestExecuteReportsError(t *testing.T) {
	s, kernel := attach(t)
	serveExecute(t, kernel,
		message.ExecuteReply{Status: "error", EName: "ZeroDivisionError", EValue: "division by zero"},
		message.ErrorOutput{
			EName:     "ZeroDivisionError",
			EValue:    "division by zero",
			Traceback: []string{"Traceback (most recent call last):", "ZeroDivisionError: division by zero"},
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out bytes.Buffer
	err := execute(ctx, s, options{code: "1/0"}, &out)
	if err == nil || !strings.Contains(err.Error(), "ZeroDivisionError") {
		t.Fatalf("execute = %v, want the error reply surfaced", err)
	}
	if !strings.Contains(out.String(), "Traceback (most recent call last):\nZeroDivisionError") {
		t.Errorf("traceback not printed:\n%s", out.String())
	}
	if !strings.HasSuffix(out.String(), "status: error\n") {
		t.Errorf("output does not end with the reply status:\n%s", out.String())
	}
	if strings.Contains(out.String(), "not mine") || strings.Contains(out.String(), "stale") {
		t.Errorf("printed output of another request:\n%s", out.String())
	}
}

func TestExecuteHonoursDeadline(t *testing.T) {
	s, _ := attach(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	if err := execute(ctx, s, options{code: "while True: pass"}, &out); err == nil {
		t.Fatal("execute returned nil with a silent kernel")
	}
}
