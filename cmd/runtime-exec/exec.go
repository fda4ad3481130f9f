// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/jupyter/session"
)

type options struct {
	code       string
	kernelInfo bool
}

type executeResult struct {
	reply *message.Envelope
	err   error
}

// execute runs opts.code on s and writes the correlated broadcast
// outputs to out until the kernel is idle for the request and the
// reply has arrived.
func execute(ctx context.Context, s *session.Session, opts options, out io.Writer) error {
	if opts.kernelInfo {
		info, err := s.KernelInfo(ctx)
		if err != nil {
			return err
		}
		language, _ := info.LanguageInfo["name"].(string)
		fmt.Fprintf(out, "kernel: %s %s (%s, protocol %s)\n",
			info.Implementation, info.ImplementationVersion, language, info.ProtocolVersion)
	}

	request, err := s.PrepareExecute(opts.code)
	if err != nil {
		return err
	}
	results := make(chan executeResult, 1)
	go func() {
		reply, err := s.Submit(ctx, request)
		results <- executeResult{reply: reply, err: err}
	}()

	var reply *message.Envelope
	for idle := false; !idle; {
		event, err := s.NextEvent(ctx)
		if err != nil {
			return fmt.Errorf("reading outputs: %w", err)
		}
		if !event.RepliesTo(request.Header) {
			continue
		}
		if event.Header.MsgType == message.TypeStatus {
			idle = event.ExecutionState() == message.StateIdle
			continue
		}
		if err := printOutput(out, event); err != nil {
			return err
		}
	}

	select {
	case result := <-results:
		if result.err != nil {
			return result.err
		}
		reply = result.reply
	case <-ctx.Done():
		return fmt.Errorf("waiting for execute reply: %w", ctx.Err())
	}

	content, err := reply.Decoded()
	if err != nil {
		return err
	}
	executeReply, ok := content.(message.ExecuteReply)
	if !ok {
		return fmt.Errorf("unexpected reply type %s", reply.Header.MsgType)
	}
	fmt.Fprintf(out, "status: %s\n", executeReply.Status)
	if executeReply.Status != "ok" {
		if executeReply.EName != "" {
			return fmt.Errorf("execution %s: %s: %s", executeReply.Status, executeReply.EName, executeReply.EValue)
		}
		return fmt.Errorf("execution %s", executeReply.Status)
	}
	return nil
}

func printOutput(out io.Writer, event *message.Envelope) error {
	content, err := event.Decoded()
	if err != nil {
		return err
	}
	switch output := content.(type) {
	case message.Stream:
		fmt.Fprint(out, output.Text)
	case message.ExecuteResult:
		printPlain(out, output.Data)
	case message.DisplayData:
		printPlain(out, output.Data)
	case message.ErrorOutput:
		if len(output.Traceback) == 0 {
			fmt.Fprintf(out, "%s: %s\n", output.EName, output.EValue)
			return nil
		}
		fmt.Fprintln(out, strings.Join(output.Traceback, "\n"))
	}
	return nil
}

func printPlain(out io.Writer, data map[string]any) {
	if text, ok := data["text/plain"].(string); ok {
		fmt.Fprintln(out, text)
	}
}
