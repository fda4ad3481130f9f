// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wiretest

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/runtimed/lib/clock"
	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/jupyter/runtime"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
)

// Kernel plays the kernel side of a session attached through a
// Transport: it reads requests the session sent, answers them, and
// publishes iopub envelopes.
type Kernel struct {
	Signer *message.Signer

	transport  *Transport
	descriptor *runtime.Descriptor
	origin     *message.Origin
}

// NewKernel returns the peer for descriptor's endpoints on transport.
// Sessions must be attached before its sockets are used.
func NewKernel(transport *Transport, descriptor *runtime.Descriptor) (*Kernel, error) {
	signer, err := descriptor.Signer()
	if err != nil {
		return nil, err
	}
	return &Kernel{
		Signer:     signer,
		transport:  transport,
		descriptor: descriptor,
		origin:     message.NewOrigin("kernel", clock.Fake(time.Unix(1700000000, 0))),
	}, nil
}

// Socket returns the fake socket the session dialed for role.
func (k *Kernel) Socket(role wire.Role) *Socket {
	return k.transport.Socket(k.descriptor.Endpoint(role))
}

func (k *Kernel) socket(role wire.Role) (*Socket, error) {
	socket := k.Socket(role)
	if socket == nil {
		return nil, fmt.Errorf("wiretest: no %s socket dialed to %s", role, k.descriptor.Endpoint(role))
	}
	return socket, nil
}

// NextRequest decodes the next frame set the session sent on role.
func (k *Kernel) NextRequest(ctx context.Context, role wire.Role) (*message.Envelope, error) {
	socket, err := k.socket(role)
	if err != nil {
		return nil, err
	}
	select {
	case frames := <-socket.Sent():
		return message.Decode(frames, k.Signer)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply sends an envelope of msgType correlated to request on role.
func (k *Kernel) Reply(role wire.Role, request *message.Envelope, msgType string, content any) (*message.Envelope, error) {
	return k.send(role, msgType, content, &request.Header)
}

// Publish broadcasts an envelope on iopub, correlated to parent when
// non-nil.
func (k *Kernel) Publish(msgType string, content any, parent *message.Header) (*message.Envelope, error) {
	return k.send(wire.IOPub, msgType, content, parent)
}

func (k *Kernel) send(role wire.Role, msgType string, content any, parent *message.Header) (*message.Envelope, error) {
	socket, err := k.socket(role)
	if err != nil {
		return nil, err
	}
	envelope, err := k.origin.Construct(msgType, content, parent)
	if err != nil {
		return nil, err
	}
	if role == wire.IOPub {
		envelope.Identities = [][]byte{[]byte("kernel." + msgType)}
	}
	return envelope, socket.DeliverEnvelope(envelope, k.Signer)
}

// Serve answers every request on role with handler's reply until ctx
// ends or the socket closes. An empty reply type sends nothing.
func (k *Kernel) Serve(ctx context.Context, role wire.Role, handler func(request *message.Envelope) (msgType string, content any)) error {
	socket, err := k.socket(role)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case frames := <-socket.Sent():
				request, err := message.Decode(frames, k.Signer)
				if err != nil {
					continue
				}
				if msgType, content := handler(request); msgType != "" {
					k.Reply(role, request, msgType, content)
				}
			case <-socket.Closed():
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// EchoHeartbeats echoes every heartbeat payload until ctx ends or the
// socket closes.
func (k *Kernel) EchoHeartbeats(ctx context.Context) error {
	socket, err := k.socket(wire.Heartbeat)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case frames := <-socket.Sent():
				socket.Deliver(frames)
			case <-socket.Closed():
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
