// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wiretest provides an in-memory wire.Transport for testing
// sessions and hosts without ZeroMQ.
//
// Each socket opened through a [Transport] is a [Socket] whose
// outbound frame sets are readable from Sent and whose inbound frame
// sets are injected with Deliver. Failures can be forced per role at
// open or dial time, and [Transport.OpenSockets] counts sockets not
// yet closed so tests can assert that nothing leaked. Heartbeat
// sockets keep REQ ordering: Recv fails until the first send.
package wiretest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"

	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
)

// Transport is a fake wire.Transport.
type Transport struct {
	mu         sync.Mutex
	failOpen   map[wire.Role]error
	failDial   map[wire.Role]error
	holdClose  map[wire.Role]<-chan struct{}
	sockets    []*Socket
	byEndpoint map[string]*Socket
	dialed     chan *Socket
}

// NewTransport returns a Transport with no failures configured.
func NewTransport() *Transport {
	return &Transport{
		failOpen:   make(map[wire.Role]error),
		failDial:   make(map[wire.Role]error),
		holdClose:  make(map[wire.Role]<-chan struct{}),
		byEndpoint: make(map[string]*Socket),
		dialed:     make(chan *Socket, 256),
	}
}

// FailOpen makes Open return err for role.
func (t *Transport) FailOpen(role wire.Role, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failOpen[role] = err
}

// FailDial makes Dial on role's socket return err.
func (t *Transport) FailDial(role wire.Role, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failDial[role] = err
}

// HoldClose makes Close on role's sockets block until release is
// closed. The socket counts as closed as soon as Close is called.
func (t *Transport) HoldClose(role wire.Role, release <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holdClose[role] = release
}

// Reset clears all configured failures and holds.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.failOpen)
	clear(t.failDial)
	clear(t.holdClose)
}

func (t *Transport) Open(_ context.Context, role wire.Role) (wire.Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.failOpen[role]; err != nil {
		return nil, err
	}
	socket := &Socket{
		Role:      role,
		transport: t,
		inbound:   make(chan [][]byte, 64),
		sent:      make(chan [][]byte, 64),
		peerGone:  make(chan struct{}),
		closed:    make(chan struct{}),
	}
	t.sockets = append(t.sockets, socket)
	return socket, nil
}

// OpenSockets counts sockets opened and not yet closed.
func (t *Transport) OpenSockets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	open := 0
	for _, socket := range t.sockets {
		if !socket.IsClosed() {
			open++
		}
	}
	return open
}

// Socket returns the socket most recently dialed to endpoint, or nil.
func (t *Transport) Socket(endpoint string) *Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byEndpoint[endpoint]
}

// Dialed delivers each socket after a successful Dial. Sockets are
// dropped from the channel once its buffer is full.
func (t *Transport) Dialed() <-chan *Socket { return t.dialed }

// Socket is one fake socket.
type Socket struct {
	Role wire.Role

	transport *Transport

	mu            sync.Mutex
	endpoint      string
	subscriptions []string

	inbound chan [][]byte
	sent    chan [][]byte

	// hasSent is set by the first SendMulti. A heartbeat (REQ) socket
	// refuses Recv until then.
	hasSent atomic.Bool

	peerOnce sync.Once
	peerGone chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *Socket) Dial(endpoint string) error {
	s.transport.mu.Lock()
	err := s.transport.failDial[s.Role]
	if err == nil {
		s.transport.byEndpoint[endpoint] = s
	}
	s.transport.mu.Unlock()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.endpoint = endpoint
	s.mu.Unlock()
	select {
	case s.transport.dialed <- s:
	default:
	}
	return nil
}

func (s *Socket) SendMulti(msg zmq4.Msg) error {
	select {
	case <-s.closed:
		return fmt.Errorf("wiretest: send on closed %s socket", s.Role)
	default:
	}
	frames := make([][]byte, len(msg.Frames))
	for i, frame := range msg.Frames {
		frames[i] = append([]byte(nil), frame...)
	}
	s.hasSent.Store(true)
	select {
	case s.sent <- frames:
		return nil
	case <-s.closed:
		return fmt.Errorf("wiretest: send on closed %s socket", s.Role)
	}
}

// ErrNoConnection is what Recv on a heartbeat socket returns before
// the first send, as a ZeroMQ REQ socket does.
var ErrNoConnection = errors.New("wiretest: no connections available")

func (s *Socket) Recv() (zmq4.Msg, error) {
	if s.Role == wire.Heartbeat && !s.hasSent.Load() {
		return zmq4.Msg{}, ErrNoConnection
	}
	select {
	case frames := <-s.inbound:
		return zmq4.NewMsgFrom(frames...), nil
	case <-s.peerGone:
		select {
		case frames := <-s.inbound:
			return zmq4.NewMsgFrom(frames...), nil
		default:
			return zmq4.Msg{}, io.EOF
		}
	case <-s.closed:
		return zmq4.Msg{}, context.Canceled
	}
}

func (s *Socket) SetOption(name string, value any) error {
	if name != zmq4.OptionSubscribe {
		return fmt.Errorf("wiretest: unsupported option %q", name)
	}
	topic, _ := value.(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = append(s.subscriptions, topic)
	return nil
}

func (s *Socket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	s.transport.mu.Lock()
	release := s.transport.holdClose[s.Role]
	s.transport.mu.Unlock()
	if release != nil {
		<-release
	}
	return nil
}

// Endpoint returns the address passed to Dial.
func (s *Socket) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Subscriptions returns the topics set with OptionSubscribe.
func (s *Socket) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscriptions...)
}

// IsClosed reports whether Close was called.
func (s *Socket) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Closed is closed when the socket is closed.
func (s *Socket) Closed() <-chan struct{} { return s.closed }

// Sent delivers every frame set the connection wrote.
func (s *Socket) Sent() <-chan [][]byte { return s.sent }

// Deliver queues a frame set for the connection to receive. It is
// dropped if the socket is closed while the queue is full.
func (s *Socket) Deliver(frames [][]byte) {
	select {
	case s.inbound <- frames:
	case <-s.closed:
	}
}

// DeliverEnvelope encodes e with signer and queues it.
func (s *Socket) DeliverEnvelope(e *message.Envelope, signer *message.Signer) error {
	frames, err := e.Encode(signer)
	if err != nil {
		return err
	}
	s.Deliver(frames)
	return nil
}

// HangUp simulates the peer going away: pending deliveries are still
// received, then Recv fails with io.EOF.
func (s *Socket) HangUp() {
	s.peerOnce.Do(func() { close(s.peerGone) })
}
