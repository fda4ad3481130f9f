// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/runtimed/lib/clock"
	"github.com/bureau-foundation/runtimed/lib/ingest"
	"github.com/bureau-foundation/runtimed/lib/jupyter/runtime"
	"github.com/bureau-foundation/runtimed/lib/jupyter/session"
	"github.com/bureau-foundation/runtimed/lib/jupyter/wire"
)

// Status labels the host writes over the kernel's execution state.
const (
	statusLost         = "lost"
	statusShutdown     = "shutdown"
	statusUnresponsive = "unresponsive"
	statusAlive        = "alive"
)

// HostConfig holds the host's collaborators and timing.
type HostConfig struct {
	RuntimeDir string
	Ledger     ingest.Appender
	Transport  wire.Transport
	Clock      clock.Clock
	Logger     *slog.Logger

	DiscoveryInterval time.Duration

	// HeartbeatInterval of zero disables liveness probing.
	HeartbeatInterval time.Duration

	DetachGrace time.Duration
}

// Host owns every attached runtime, keyed by runtime id.
type Host struct {
	config HostConfig
	clock  clock.Clock
	logger *slog.Logger

	mu          sync.Mutex
	attachments map[string]*attachment

	loops sync.WaitGroup
}

// attachment is one runtime the host has attached to.
type attachment struct {
	descriptor *runtime.Descriptor
	session    *session.Session

	// cancel stops the ingestion loop and any probe in flight.
	ctx    context.Context
	cancel context.CancelFunc

	// done is closed when the ingestion loop returns.
	done chan struct{}

	// ended is set once the loop has returned on its own, because
	// the runtime was lost or shut down.
	ended   atomic.Bool
	probing atomic.Bool
}

// RuntimeStatus is a point-in-time view of one attachment.
type RuntimeStatus struct {
	ID         string
	KernelName string
	Status     string
	Ended      bool
}

func NewHost(cfg HostConfig) *Host {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Host{
		config:      cfg,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		attachments: make(map[string]*attachment),
	}
}

// Run reconciles immediately and then on every discovery tick, probing
// heartbeats on their own ticker, until ctx ends. It detaches every
// runtime before returning.
func (h *Host) Run(ctx context.Context) {
	defer h.Shutdown()

	h.Reconcile(ctx)
	discovery := h.clock.NewTicker(h.config.DiscoveryInterval)
	defer discovery.Stop()

	var heartbeat <-chan time.Time
	if h.config.HeartbeatInterval > 0 {
		ticker := h.clock.NewTicker(h.config.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("host stopping", "reason", ctx.Err())
			return
		case <-discovery.C:
			h.Reconcile(ctx)
		case <-heartbeat:
			h.probeAll()
		}
	}
}

// Reconcile attaches runtimes whose connection files are new and
// detaches runtimes whose files are gone.
func (h *Host) Reconcile(ctx context.Context) {
	descriptors, err := runtime.Discover(h.config.RuntimeDir, h.logger)
	if err != nil {
		h.logger.Error("runtime discovery failed", "dir", h.config.RuntimeDir, "error", err)
		return
	}

	present := make(map[string]bool, len(descriptors))
	for _, descriptor := range descriptors {
		present[descriptor.ID] = true

		h.mu.Lock()
		_, known := h.attachments[descriptor.ID]
		h.mu.Unlock()
		if known || ctx.Err() != nil {
			descriptor.Close()
			continue
		}
		h.attach(ctx, descriptor)
	}

	h.mu.Lock()
	var gone []*attachment
	for id, a := range h.attachments {
		if !present[id] {
			gone = append(gone, a)
			delete(h.attachments, id)
		}
	}
	h.mu.Unlock()

	for _, a := range gone {
		h.logger.Info("connection file removed", "runtime_id", a.descriptor.ID)
		h.release(a)
	}
}

func (h *Host) attach(ctx context.Context, descriptor *runtime.Descriptor) {
	logger := h.logger.With("runtime_id", descriptor.ID)
	s, err := session.Attach(ctx, descriptor, session.Config{
		Transport:   h.config.Transport,
		Clock:       h.clock,
		Logger:      h.logger,
		DetachGrace: h.config.DetachGrace,
	})
	if err != nil {
		logger.Warn("attach failed", "connection_file", descriptor.ConnectionFile, "error", err)
		descriptor.Close()
		return
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &attachment{
		descriptor: descriptor,
		session:    s,
		ctx:        loopCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.mu.Lock()
	h.attachments[descriptor.ID] = a
	h.mu.Unlock()

	h.loops.Add(1)
	go h.runIngest(a, logger)
}

func (h *Host) runIngest(a *attachment, logger *slog.Logger) {
	defer h.loops.Done()
	defer close(a.done)

	stats, err := ingest.New(a.descriptor.ID, a.session, h.config.Ledger, h.logger).Run(a.ctx)
	switch {
	case a.ctx.Err() != nil:
		return
	case err == nil:
		a.descriptor.SetStatus(statusShutdown)
	case errors.Is(err, ingest.ErrRuntimeLost):
		a.descriptor.SetStatus(statusLost)
	default:
		logger.Error("ingestion loop failed", "error", err)
		a.descriptor.SetStatus(statusLost)
	}
	a.ended.Store(true)
	logger.Info("runtime ended; waiting for its connection file to go",
		"status", a.descriptor.Status(),
		"received", stats.Received,
		"failed_appends", stats.Failed,
	)
	if err := a.session.Detach(); err != nil {
		logger.Warn("detach after runtime ended", "error", err)
	}
}

// release stops one attachment's loop, detaches it, and frees its key.
func (h *Host) release(a *attachment) {
	a.cancel()
	if err := a.session.Detach(); err != nil {
		h.logger.Warn("detach failed", "runtime_id", a.descriptor.ID, "error", err)
	}
	<-a.done
	a.descriptor.Close()
}

// probeAll starts a heartbeat probe on every live attachment. One still
// waiting from the previous tick marks the runtime unresponsive.
func (h *Host) probeAll() {
	h.mu.Lock()
	live := make([]*attachment, 0, len(h.attachments))
	for _, a := range h.attachments {
		if !a.ended.Load() {
			live = append(live, a)
		}
	}
	h.mu.Unlock()

	for _, a := range live {
		if !a.probing.CompareAndSwap(false, true) {
			if a.descriptor.Status() != statusUnresponsive {
				h.logger.Warn("heartbeat unanswered", "runtime_id", a.descriptor.ID)
			}
			a.descriptor.SetStatus(statusUnresponsive)
			continue
		}
		go func() {
			defer a.probing.Store(false)
			err := a.session.Heartbeat(a.ctx)
			switch {
			case a.ctx.Err() != nil:
			case err != nil:
				h.logger.Warn("heartbeat failed", "runtime_id", a.descriptor.ID, "error", err)
				a.descriptor.SetStatus(statusUnresponsive)
			case a.descriptor.Status() == statusUnresponsive:
				a.descriptor.SetStatus(statusAlive)
			}
		}()
	}
}

// Statuses returns every attachment sorted by runtime id.
func (h *Host) Statuses() []RuntimeStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	statuses := make([]RuntimeStatus, 0, len(h.attachments))
	for id, a := range h.attachments {
		statuses = append(statuses, RuntimeStatus{
			ID:         id,
			KernelName: a.descriptor.KernelName,
			Status:     a.descriptor.Status(),
			Ended:      a.ended.Load(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// Shutdown detaches every runtime and waits for the ingestion loops.
func (h *Host) Shutdown() {
	h.mu.Lock()
	all := make([]*attachment, 0, len(h.attachments))
	for id, a := range h.attachments {
		all = append(all, a)
		delete(h.attachments, id)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.release(a)
		}()
	}
	wg.Wait()
	h.loops.Wait()
}
