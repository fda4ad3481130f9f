// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/runtimed/lib/clock"
	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire/wiretest"
	"github.com/bureau-foundation/runtimed/lib/testutil"
)

const wait = 5 * time.Second

func newSigner(t *testing.T, key string) *message.Signer {
	t.Helper()
	signer, err := message.NewSigner([]byte(key), "hmac-sha256")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return signer
}

func newEnvelope(t *testing.T, msgType string, content any, parent *message.Header) *message.Envelope {
	t.Helper()
	origin := message.NewOrigin("tester", clock.Fake(time.Unix(1700000000, 0)))
	envelope, err := origin.Construct(msgType, content, parent)
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	return envelope
}

func connect(t *testing.T, transport *wiretest.Transport, role wire.Role, endpoint string, signer *message.Signer) (*wire.Connection, *wiretest.Socket) {
	t.Helper()
	conn, err := wire.Connect(context.Background(), transport, role, endpoint, signer, nil)
	if err != nil {
		t.Fatalf("Connect(%s): %v", role, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, transport.Socket(endpoint)
}

func TestConnectFailureIsConnectError(t *testing.T) {
	transport := wiretest.NewTransport()
	refused := errors.New("connection refused")
	transport.FailDial(wire.Shell, refused)

	_, err := wire.Connect(context.Background(), transport, wire.Shell, "tcp://127.0.0.1:1", nil, nil)
	var connectErr *wire.ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("Connect error = %v, want *ConnectError", err)
	}
	if connectErr.Role != wire.Shell || connectErr.Endpoint != "tcp://127.0.0.1:1" {
		t.Errorf("ConnectError = %+v", connectErr)
	}
	if !errors.Is(err, refused) {
		t.Errorf("ConnectError does not unwrap to the transport error")
	}
	if open := transport.OpenSockets(); open != 0 {
		t.Errorf("OpenSockets() = %d after failed dial, want 0", open)
	}

	transport.FailOpen(wire.Control, errors.New("no sockets left"))
	if _, err := wire.Connect(context.Background(), transport, wire.Control, "tcp://127.0.0.1:2", nil, nil); !errors.As(err, &connectErr) {
		t.Errorf("Open failure = %v, want *ConnectError", err)
	}
}

func TestConnectRejectsHeartbeatRole(t *testing.T) {
	transport := wiretest.NewTransport()
	if _, err := wire.Connect(context.Background(), transport, wire.Heartbeat, "tcp://127.0.0.1:5", nil, nil); err == nil {
		t.Fatal("expected error connecting heartbeat as a JSON connection")
	}
	if open := transport.OpenSockets(); open != 0 {
		t.Errorf("OpenSockets() = %d, want 0", open)
	}
}

func TestIOPubSubscribesToAllTopics(t *testing.T) {
	transport := wiretest.NewTransport()
	_, socket := connect(t, transport, wire.IOPub, "tcp://127.0.0.1:2", nil)

	if subs := socket.Subscriptions(); len(subs) != 1 || subs[0] != "" {
		t.Errorf("Subscriptions() = %q, want [\"\"]", subs)
	}
}

func TestSendReceiveSigned(t *testing.T) {
	signer := newSigner(t, "abc")
	transport := wiretest.NewTransport()
	conn, socket := connect(t, transport, wire.Shell, "tcp://127.0.0.1:1", signer)

	request := newEnvelope(t, message.TypeExecuteRequest, message.NewExecuteRequest("1+1"), nil)
	if err := conn.Send(request); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frames := testutil.RequireReceive(t, socket.Sent(), wait, "shell frames")
	sent, err := message.Decode(frames, signer)
	if err != nil {
		t.Fatalf("kernel side Decode: %v", err)
	}
	if sent.Header.MsgID != request.Header.MsgID {
		t.Errorf("sent msg_id = %q, want %q", sent.Header.MsgID, request.Header.MsgID)
	}

	reply := newEnvelope(t, message.TypeExecuteReply, message.ExecuteReply{Status: "ok"}, &request.Header)
	if err := socket.DeliverEnvelope(reply, signer); err != nil {
		t.Fatalf("DeliverEnvelope: %v", err)
	}
	received, err := conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !received.RepliesTo(request.Header) {
		t.Errorf("received reply is not correlated to the request")
	}
}

func TestReceiveSignatureMismatch(t *testing.T) {
	transport := wiretest.NewTransport()
	conn, socket := connect(t, transport, wire.IOPub, "tcp://127.0.0.1:2", newSigner(t, "abc"))

	forged := newEnvelope(t, message.TypeStatus, message.Status{ExecutionState: "idle"}, nil)
	if err := socket.DeliverEnvelope(forged, newSigner(t, "not-the-key")); err != nil {
		t.Fatalf("DeliverEnvelope: %v", err)
	}
	if _, err := conn.Receive(context.Background()); !errors.Is(err, message.ErrSignatureMismatch) {
		t.Fatalf("Receive error = %v, want ErrSignatureMismatch", err)
	}
}

func TestReceiveDeadlineKeepsPendingMessage(t *testing.T) {
	transport := wiretest.NewTransport()
	conn, socket := connect(t, transport, wire.IOPub, "tcp://127.0.0.1:2", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conn.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Receive with cancelled context = %v, want context.Canceled", err)
	}

	status := newEnvelope(t, message.TypeStatus, message.Status{ExecutionState: "busy"}, nil)
	if err := socket.DeliverEnvelope(status, nil); err != nil {
		t.Fatalf("DeliverEnvelope: %v", err)
	}
	received, err := conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive after abandoned wait: %v", err)
	}
	if received.Header.MsgID != status.Header.MsgID {
		t.Errorf("received %q, want %q", received.Header.MsgID, status.Header.MsgID)
	}
}

func TestPeerHangUpIsConnectionClosed(t *testing.T) {
	transport := wiretest.NewTransport()
	conn, socket := connect(t, transport, wire.IOPub, "tcp://127.0.0.1:2", nil)

	socket.HangUp()
	for attempt := range 2 {
		if _, err := conn.Receive(context.Background()); !errors.Is(err, wire.ErrConnectionClosed) {
			t.Fatalf("Receive attempt %d = %v, want ErrConnectionClosed", attempt, err)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	transport := wiretest.NewTransport()
	conn, socket := connect(t, transport, wire.Shell, "tcp://127.0.0.1:1", nil)

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !socket.IsClosed() {
		t.Error("socket not closed")
	}
	if err := conn.Send(newEnvelope(t, message.TypeKernelInfoRequest, nil, nil)); !errors.Is(err, wire.ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if _, err := conn.Receive(context.Background()); !errors.Is(err, wire.ErrClosed) {
		t.Errorf("Receive after Close = %v, want ErrClosed", err)
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	transport := wiretest.NewTransport()
	conn, _ := connect(t, transport, wire.IOPub, "tcp://127.0.0.1:2", nil)

	result := make(chan error, 1)
	go func() {
		_, err := conn.Receive(context.Background())
		result <- err
	}()
	conn.Close()

	err := testutil.RequireReceive(t, result, wait, "blocked Receive")
	if !errors.Is(err, wire.ErrClosed) {
		t.Errorf("blocked Receive = %v, want ErrClosed", err)
	}
	if !errors.Is(err, wire.ErrConnectionClosed) {
		t.Errorf("blocked Receive = %v, want a local close to count as ErrConnectionClosed", err)
	}
}

func TestHeartbeatProbe(t *testing.T) {
	transport := wiretest.NewTransport()
	heartbeat, err := wire.ConnectHeartbeat(context.Background(), transport, "tcp://127.0.0.1:5", nil)
	if err != nil {
		t.Fatalf("ConnectHeartbeat: %v", err)
	}
	defer heartbeat.Close()
	socket := transport.Socket("tcp://127.0.0.1:5")

	echo := func(reply func([][]byte) [][]byte) {
		go func() {
			frames := <-socket.Sent()
			socket.Deliver(reply(frames))
		}()
	}

	echo(func(frames [][]byte) [][]byte { return frames })
	if err := heartbeat.Probe(context.Background(), []byte("ping-1")); err != nil {
		t.Fatalf("Probe with echoing peer: %v", err)
	}

	echo(func([][]byte) [][]byte { return [][]byte{[]byte("pong")} })
	if err := heartbeat.Probe(context.Background(), []byte("ping-2")); !errors.Is(err, wire.ErrEchoMismatch) {
		t.Fatalf("Probe with wrong echo = %v, want ErrEchoMismatch", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := heartbeat.Probe(ctx, []byte("ping-3")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Probe with silent peer = %v, want DeadlineExceeded", err)
	}
}

func TestHeartbeatSocketRefusesRecvBeforeSend(t *testing.T) {
	transport := wiretest.NewTransport()
	heartbeat, err := wire.ConnectHeartbeat(context.Background(), transport, "tcp://127.0.0.1:5", nil)
	if err != nil {
		t.Fatalf("ConnectHeartbeat: %v", err)
	}
	defer heartbeat.Close()
	socket := transport.Socket("tcp://127.0.0.1:5")

	if _, err := socket.Recv(); !errors.Is(err, wiretest.ErrNoConnection) {
		t.Fatalf("Recv before any send = %v, want ErrNoConnection", err)
	}

	// Connecting must not have started a read, so the first probe
	// still works.
	go func() {
		frames := <-socket.Sent()
		socket.Deliver(frames)
	}()
	if err := heartbeat.Probe(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("Probe on a fresh connection: %v", err)
	}
}

func TestHeartbeatDiscardsLateEcho(t *testing.T) {
	transport := wiretest.NewTransport()
	heartbeat, err := wire.ConnectHeartbeat(context.Background(), transport, "tcp://127.0.0.1:5", nil)
	if err != nil {
		t.Fatalf("ConnectHeartbeat: %v", err)
	}
	defer heartbeat.Close()
	socket := transport.Socket("tcp://127.0.0.1:5")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := heartbeat.Probe(ctx, []byte("ping-1")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Probe with silent peer = %v, want DeadlineExceeded", err)
	}

	// The peer answers the first probe late, then the second on time.
	go func() {
		for range 2 {
			frames := <-socket.Sent()
			socket.Deliver(frames)
		}
	}()
	if err := heartbeat.Probe(context.Background(), []byte("ping-2")); err != nil {
		t.Fatalf("Probe after a late echo: %v", err)
	}
}

func TestHeartbeatCloseEndsProbe(t *testing.T) {
	transport := wiretest.NewTransport()
	heartbeat, err := wire.ConnectHeartbeat(context.Background(), transport, "tcp://127.0.0.1:5", nil)
	if err != nil {
		t.Fatalf("ConnectHeartbeat: %v", err)
	}
	socket := transport.Socket("tcp://127.0.0.1:5")

	result := make(chan error, 1)
	go func() { result <- heartbeat.Probe(context.Background(), []byte("ping")) }()
	<-socket.Sent()
	if err := heartbeat.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := testutil.RequireReceive(t, result, wait, "blocked Probe"); !errors.Is(err, wire.ErrConnectionClosed) {
		t.Errorf("blocked Probe = %v, want ErrConnectionClosed", err)
	}
	if err := heartbeat.Probe(context.Background(), []byte("again")); !errors.Is(err, wire.ErrClosed) {
		t.Errorf("Probe after Close = %v, want ErrClosed", err)
	}
}

func TestRoleNames(t *testing.T) {
	want := []string{"iopub", "shell", "stdin", "control", "heartbeat"}
	for i, role := range wire.Roles {
		if role.String() != want[i] {
			t.Errorf("Roles[%d] = %s, want %s", i, role, want[i])
		}
	}
}
