// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/bureau-foundation/runtimed/lib/jupyter/message"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
	"github.com/bureau-foundation/runtimed/lib/secret"
)

// Descriptor identifies one running kernel and how to reach it.
type Descriptor struct {
	// ID is derived from the connection file name, or generated.
	ID string

	Transport  string
	IP         string
	KernelName string

	ShellPort   int
	IOPubPort   int
	StdinPort   int
	ControlPort int
	HBPort      int

	// Key is the signing key, or nil when messages are unsigned.
	Key             *secret.Buffer
	SignatureScheme string

	// ConnectionFile is the path the descriptor was parsed from.
	ConnectionFile string

	mu         sync.Mutex
	status     string
	kernelInfo json.RawMessage
}

// Port returns the port for role.
func (d *Descriptor) Port(role wire.Role) int {
	switch role {
	case wire.Shell:
		return d.ShellPort
	case wire.IOPub:
		return d.IOPubPort
	case wire.Stdin:
		return d.StdinPort
	case wire.Control:
		return d.ControlPort
	case wire.Heartbeat:
		return d.HBPort
	}
	return 0
}

// Endpoint returns the ZeroMQ address for role: tcp://ip:port, or
// ipc://ip-port for the ipc transport.
func (d *Descriptor) Endpoint(role wire.Role) string {
	port := d.Port(role)
	if d.Transport == "ipc" {
		return fmt.Sprintf("ipc://%s-%d", d.IP, port)
	}
	return fmt.Sprintf("%s://%s", d.Transport, net.JoinHostPort(d.IP, strconv.Itoa(port)))
}

// Signer returns a message signer for the descriptor's key and scheme.
func (d *Descriptor) Signer() (*message.Signer, error) {
	if d.Key == nil {
		return message.NewSigner(nil, d.SignatureScheme)
	}
	key := d.Key.Copy()
	defer secret.Zero(key)
	return message.NewSigner(key, d.SignatureScheme)
}

// Status returns the last recorded status label.
func (d *Descriptor) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Descriptor) SetStatus(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
}

// KernelInfo returns the stored kernel_info_reply content, or nil.
func (d *Descriptor) KernelInfo() json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kernelInfo
}

func (d *Descriptor) SetKernelInfo(info json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernelInfo = info
}

// Close releases the signing key.
func (d *Descriptor) Close() error {
	if d.Key == nil {
		return nil
	}
	return d.Key.Close()
}
