// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by runtimed.
//
// Every time decision in the daemon (the detach grace period, the
// discovery and heartbeat tickers, ledger arrival timestamps, envelope
// header dates) goes through a [Clock] instead of the time package. In
// production [Real] wraps the standard library; tests use [Fake] and
// move time explicitly:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go host.Serve(ctx)
//	fakeClock.WaitForTimers(1)          // discovery ticker registered
//	fakeClock.Advance(2 * time.Second)  // fire one reconcile pass
//
// WaitForTimers closes the race between a goroutine registering a timer
// and the test advancing past it.
package clock
