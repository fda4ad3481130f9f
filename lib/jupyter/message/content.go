// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/json"
	"fmt"
)

// Message types runtimed sends or interprets.
const (
	TypeExecuteRequest    = "execute_request"
	TypeExecuteReply      = "execute_reply"
	TypeExecuteInput      = "execute_input"
	TypeExecuteResult     = "execute_result"
	TypeDisplayData       = "display_data"
	TypeStream            = "stream"
	TypeError             = "error"
	TypeStatus            = "status"
	TypeKernelInfoRequest = "kernel_info_request"
	TypeKernelInfoReply   = "kernel_info_reply"
	TypeShutdownRequest   = "shutdown_request"
	TypeShutdownReply     = "shutdown_reply"
)

// Execution states carried by status broadcasts.
const (
	StateBusy     = "busy"
	StateIdle     = "idle"
	StateStarting = "starting"
)

// Content is the decoded form of an envelope's content object.
type Content interface {
	MessageType() string
}

// ExecuteRequest asks the kernel to run code.
type ExecuteRequest struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
}

// NewExecuteRequest returns the request block runtimed sends for code:
// not silent, stored in history, no user expressions, no stdin.
func NewExecuteRequest(code string) ExecuteRequest {
	return ExecuteRequest{
		Code:            code,
		StoreHistory:    true,
		UserExpressions: map[string]any{},
	}
}

func (ExecuteRequest) MessageType() string { return TypeExecuteRequest }

// ExecuteReply is the shell reply to an ExecuteRequest. Status is
// "ok", "error", or "aborted".
type ExecuteReply struct {
	Status         string   `json:"status"`
	ExecutionCount int      `json:"execution_count,omitempty"`
	EName          string   `json:"ename,omitempty"`
	EValue         string   `json:"evalue,omitempty"`
	Traceback      []string `json:"traceback,omitempty"`
}

func (ExecuteReply) MessageType() string { return TypeExecuteReply }

// ExecuteInput rebroadcasts the code being run.
type ExecuteInput struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

func (ExecuteInput) MessageType() string { return TypeExecuteInput }

// ExecuteResult carries the value of the last expression.
type ExecuteResult struct {
	ExecutionCount int            `json:"execution_count"`
	Data           map[string]any `json:"data"`
	Metadata       map[string]any `json:"metadata"`
}

func (ExecuteResult) MessageType() string { return TypeExecuteResult }

// DisplayData carries rich output not tied to an execution count.
type DisplayData struct {
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata"`
	Transient map[string]any `json:"transient,omitempty"`
}

func (DisplayData) MessageType() string { return TypeDisplayData }

// Stream is text written to stdout or stderr.
type Stream struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (Stream) MessageType() string { return TypeStream }

// ErrorOutput is a broadcast exception report.
type ErrorOutput struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

func (ErrorOutput) MessageType() string { return TypeError }

// Status reports the kernel's execution state.
type Status struct {
	ExecutionState string `json:"execution_state"`
}

func (Status) MessageType() string { return TypeStatus }

// KernelInfoRequest has no fields.
type KernelInfoRequest struct{}

func (KernelInfoRequest) MessageType() string { return TypeKernelInfoRequest }

// KernelInfoReply describes the kernel implementation.
type KernelInfoReply struct {
	Status                string         `json:"status"`
	ProtocolVersion       string         `json:"protocol_version"`
	Implementation        string         `json:"implementation"`
	ImplementationVersion string         `json:"implementation_version"`
	LanguageInfo          map[string]any `json:"language_info"`
	Banner                string         `json:"banner"`
}

func (KernelInfoReply) MessageType() string { return TypeKernelInfoReply }

// ShutdownRequest asks the kernel to exit, or restart when Restart is
// set.
type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

func (ShutdownRequest) MessageType() string { return TypeShutdownRequest }

type ShutdownReply struct {
	Status  string `json:"status"`
	Restart bool   `json:"restart"`
}

func (ShutdownReply) MessageType() string { return TypeShutdownReply }

// Opaque holds content of a message type runtimed does not interpret.
type Opaque struct {
	Type   string
	Fields map[string]any
}

func (o Opaque) MessageType() string { return o.Type }

// Decoded interprets the content according to the header's message
// type.
func (e *Envelope) Decoded() (Content, error) {
	var content Content
	var err error
	switch e.Header.MsgType {
	case TypeExecuteRequest:
		content, err = decodeAs[ExecuteRequest](e.Content)
	case TypeExecuteReply:
		content, err = decodeAs[ExecuteReply](e.Content)
	case TypeExecuteInput:
		content, err = decodeAs[ExecuteInput](e.Content)
	case TypeExecuteResult:
		content, err = decodeAs[ExecuteResult](e.Content)
	case TypeDisplayData:
		content, err = decodeAs[DisplayData](e.Content)
	case TypeStream:
		content, err = decodeAs[Stream](e.Content)
	case TypeError:
		content, err = decodeAs[ErrorOutput](e.Content)
	case TypeStatus:
		content, err = decodeAs[Status](e.Content)
	case TypeKernelInfoRequest:
		content, err = decodeAs[KernelInfoRequest](e.Content)
	case TypeKernelInfoReply:
		content, err = decodeAs[KernelInfoReply](e.Content)
	case TypeShutdownRequest:
		content, err = decodeAs[ShutdownRequest](e.Content)
	case TypeShutdownReply:
		content, err = decodeAs[ShutdownReply](e.Content)
	default:
		opaque := Opaque{Type: e.Header.MsgType}
		err = json.Unmarshal(orEmpty(e.Content), &opaque.Fields)
		content = opaque
	}
	if err != nil {
		return nil, fmt.Errorf("message: decoding %s content: %w", e.Header.MsgType, err)
	}
	return content, nil
}

func decodeAs[T Content](raw json.RawMessage) (Content, error) {
	var value T
	if err := json.Unmarshal(orEmpty(raw), &value); err != nil {
		return nil, err
	}
	return value, nil
}

// ExecutionState returns content.execution_state, or "" when the
// content carries none.
func (e *Envelope) ExecutionState() string {
	var probe struct {
		ExecutionState string `json:"execution_state"`
	}
	if json.Unmarshal(orEmpty(e.Content), &probe) != nil {
		return ""
	}
	return probe.ExecutionState
}

// IsShutdownSignal reports whether e is the peer's termination signal:
// an idle execution state in answer to a shutdown_request.
func IsShutdownSignal(e *Envelope) bool {
	return e.ParentType() == TypeShutdownRequest && e.ExecutionState() == StateIdle
}
