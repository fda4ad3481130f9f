// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/runtimed/lib/clock"
	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/jupyter/runtime"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
)

// DefaultDetachGrace bounds Detach when Config.DetachGrace is zero.
const DefaultDetachGrace = 60 * time.Millisecond

// DefaultUsername is stamped on outgoing headers when Config.Username
// is empty.
const DefaultUsername = "runtimed"

// Config holds the collaborators a session is built with. Every field
// is optional.
type Config struct {
	// Transport opens sockets. Nil uses wire.ZMQTransport.
	Transport wire.Transport

	// Clock times the detach grace period and stamps headers. Nil
	// uses clock.Real.
	Clock clock.Clock

	Logger *slog.Logger

	DetachGrace time.Duration
	Username    string
}

// Session is an attached kernel.
type Session struct {
	descriptor *runtime.Descriptor
	origin     *message.Origin
	clock      clock.Clock
	logger     *slog.Logger
	grace      time.Duration

	shell     *wire.Connection
	iopub     *wire.Connection
	stdin     *wire.Connection
	control   *wire.Connection
	heartbeat *wire.HeartbeatConnection

	// One caller at a time per connection: a request holds its
	// connection's lock from send until the correlated reply.
	shellMu     sync.Mutex
	controlMu   sync.Mutex
	iopubMu     sync.Mutex
	heartbeatMu sync.Mutex

	mu    sync.Mutex
	state State

	detachOnce sync.Once
}

// Attach opens all five connections to the kernel described by
// descriptor. On failure every connection already opened is closed
// and the error is an *AttachError.
func Attach(ctx context.Context, descriptor *runtime.Descriptor, cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		cfg.Transport = wire.ZMQTransport{Logger: cfg.Logger}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.DetachGrace <= 0 {
		cfg.DetachGrace = DefaultDetachGrace
	}
	if cfg.Username == "" {
		cfg.Username = DefaultUsername
	}

	s := &Session{
		descriptor: descriptor,
		origin:     message.NewOrigin(cfg.Username, cfg.Clock),
		clock:      cfg.Clock,
		logger:     cfg.Logger.With("runtime_id", descriptor.ID),
		grace:      cfg.DetachGrace,
		state:      StateAttaching,
	}

	signer, err := descriptor.Signer()
	if err != nil {
		return nil, &AttachError{RuntimeID: descriptor.ID, Step: "signer", Err: err}
	}

	var opened []func() error
	fail := func(role wire.Role, err error) (*Session, error) {
		for _, closeConn := range opened {
			closeConn()
		}
		return nil, &AttachError{RuntimeID: descriptor.ID, Step: role.String(), Err: err}
	}

	for _, role := range wire.Roles {
		endpoint := descriptor.Endpoint(role)
		if role == wire.Heartbeat {
			heartbeat, err := wire.ConnectHeartbeat(ctx, cfg.Transport, endpoint, cfg.Logger)
			if err != nil {
				return fail(role, err)
			}
			s.heartbeat = heartbeat
			opened = append(opened, heartbeat.Close)
			continue
		}
		conn, err := wire.Connect(ctx, cfg.Transport, role, endpoint, signer, cfg.Logger)
		if err != nil {
			return fail(role, err)
		}
		opened = append(opened, conn.Close)
		switch role {
		case wire.IOPub:
			s.iopub = conn
		case wire.Shell:
			s.shell = conn
		case wire.Stdin:
			s.stdin = conn
		case wire.Control:
			s.control = conn
		}
	}

	s.state = StateAttached
	s.logger.Info("session attached",
		"kernel_name", descriptor.KernelName,
		"transport", descriptor.Transport,
		"ip", descriptor.IP,
		"signed", signer.Enabled(),
	)
	return s, nil
}

// ID returns the session id stamped on every request header. Kernels
// copy it into the parent header of their broadcasts.
func (s *Session) ID() string { return s.origin.Session }

// Descriptor returns the kernel this session is attached to.
func (s *Session) Descriptor() *runtime.Descriptor { return s.descriptor }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the last execution state seen on iopub, or
// whatever label the host recorded since.
func (s *Session) Status() string { return s.descriptor.Status() }

func (s *Session) checkAttached() error {
	if s.State() != StateAttached {
		return ErrNotAttached
	}
	return nil
}

// Execute runs code on the kernel and returns the execute_request it
// sent and the correlated execute_reply.
func (s *Session) Execute(ctx context.Context, code string) (request, reply *message.Envelope, err error) {
	request, err = s.PrepareExecute(code)
	if err != nil {
		return nil, nil, err
	}
	reply, err = s.Submit(ctx, request)
	if err != nil {
		return nil, nil, err
	}
	return request, reply, nil
}

// PrepareExecute builds the execute_request for code without sending
// it. Callers that match broadcasts to the request before its reply
// arrives send it with Submit.
func (s *Session) PrepareExecute(code string) (*message.Envelope, error) {
	return s.origin.Construct(message.TypeExecuteRequest, message.NewExecuteRequest(code), nil)
}

// Submit sends request on shell and waits for the reply whose parent
// is request.
func (s *Session) Submit(ctx context.Context, request *message.Envelope) (*message.Envelope, error) {
	reply, err := s.roundTrip(ctx, s.shell, &s.shellMu, request)
	if err != nil {
		return nil, fmt.Errorf("session: %s: %w", request.Header.MsgType, err)
	}
	return reply, nil
}

// KernelInfo requests kernel_info on shell and records the reply
// content on the descriptor.
func (s *Session) KernelInfo(ctx context.Context) (message.KernelInfoReply, error) {
	request, err := s.origin.Construct(message.TypeKernelInfoRequest, message.KernelInfoRequest{}, nil)
	if err != nil {
		return message.KernelInfoReply{}, err
	}
	reply, err := s.roundTrip(ctx, s.shell, &s.shellMu, request)
	if err != nil {
		return message.KernelInfoReply{}, fmt.Errorf("session: kernel info: %w", err)
	}
	content, err := reply.Decoded()
	if err != nil {
		return message.KernelInfoReply{}, fmt.Errorf("session: kernel info: %w", err)
	}
	info, ok := content.(message.KernelInfoReply)
	if !ok {
		return message.KernelInfoReply{}, fmt.Errorf("session: kernel info: reply has type %s", reply.Header.MsgType)
	}
	s.descriptor.SetKernelInfo(reply.Content)
	return info, nil
}

// Shutdown asks the kernel to exit (or restart) over control and waits
// for the correlated shutdown_reply. The session stays attached; the
// kernel's idle status in answer to the request ends Run.
func (s *Session) Shutdown(ctx context.Context, restart bool) (*message.Envelope, error) {
	request, err := s.origin.Construct(message.TypeShutdownRequest, message.ShutdownRequest{Restart: restart}, nil)
	if err != nil {
		return nil, err
	}
	reply, err := s.roundTrip(ctx, s.control, &s.controlMu, request)
	if err != nil {
		return nil, fmt.Errorf("session: shutdown: %w", err)
	}
	return reply, nil
}

// roundTrip sends request on conn and returns the first envelope that
// replies to it.
func (s *Session) roundTrip(ctx context.Context, conn *wire.Connection, mu *sync.Mutex, request *message.Envelope) (*message.Envelope, error) {
	if err := s.checkAttached(); err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()

	if err := conn.Send(request); err != nil {
		return nil, err
	}
	for {
		reply, err := conn.Receive(ctx)
		if err != nil {
			return nil, err
		}
		if reply.RepliesTo(request.Header) {
			return reply, nil
		}
		s.logger.Debug("dropping uncorrelated reply",
			"role", conn.Role().String(),
			"msg_id", reply.Header.MsgID,
			"msg_type", reply.Header.MsgType,
			"parent_msg_id", reply.ParentID(),
			"awaiting", request.Header.MsgID,
		)
	}
}

// NextEvent returns the next iopub envelope in arrival order. A status
// broadcast also updates the descriptor's status label.
func (s *Session) NextEvent(ctx context.Context) (*message.Envelope, error) {
	if err := s.checkAttached(); err != nil {
		return nil, err
	}
	s.iopubMu.Lock()
	defer s.iopubMu.Unlock()

	event, err := s.iopub.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if event.Header.MsgType == message.TypeStatus {
		if state := event.ExecutionState(); state != "" {
			s.descriptor.SetStatus(state)
		}
	}
	return event, nil
}

// Run passes every iopub envelope to handle, if non-nil, until the
// kernel's shutdown signal arrives, which returns nil after it is
// handled. Any NextEvent failure ends Run with that error.
func (s *Session) Run(ctx context.Context, handle func(*message.Envelope)) error {
	for {
		event, err := s.NextEvent(ctx)
		if err != nil {
			return err
		}
		if handle != nil {
			handle(event)
		}
		if message.IsShutdownSignal(event) {
			s.logger.Info("kernel signalled shutdown", "msg_id", event.Header.MsgID)
			return nil
		}
	}
}

// Heartbeat probes liveness with a unique payload and waits for the
// echo.
func (s *Session) Heartbeat(ctx context.Context) error {
	if err := s.checkAttached(); err != nil {
		return err
	}
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()

	payload := []byte(uuid.NewString())
	if err := s.heartbeat.Probe(ctx, payload); err != nil {
		return fmt.Errorf("session: heartbeat: %w", err)
	}
	return nil
}

// Detach closes all five connections, waiting at most the grace
// period. It returns ErrDetachTimeout if any close is still running
// then; those closes continue in the background. Only the first call
// does anything; later calls return nil.
func (s *Session) Detach() error {
	var result error
	s.detachOnce.Do(func() { result = s.detach() })
	return result
}

func (s *Session) detach() error {
	s.mu.Lock()
	s.state = StateDetaching
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.state = StateDetached
		s.mu.Unlock()
	}()

	closers := []struct {
		role  wire.Role
		close func() error
	}{
		{wire.IOPub, s.iopub.Close},
		{wire.Shell, s.shell.Close},
		{wire.Stdin, s.stdin.Close},
		{wire.Control, s.control.Close},
		{wire.Heartbeat, s.heartbeat.Close},
	}

	results := make(chan error, len(closers))
	for _, closer := range closers {
		go func() {
			if err := closer.close(); err != nil {
				results <- fmt.Errorf("%s: %w", closer.role, err)
				return
			}
			results <- nil
		}()
	}

	deadline := s.clock.After(s.grace)
	var errs []error
	for range closers {
		select {
		case err := <-results:
			if err != nil {
				errs = append(errs, err)
			}
		case <-deadline:
			s.logger.Warn("detach grace period elapsed", "grace", s.grace)
			return ErrDetachTimeout
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("session: detach: %w", err)
	}
	s.logger.Info("session detached")
	return nil
}
