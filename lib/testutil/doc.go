// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for runtimed packages.
//
// [RequireReceive] and [RequireClosed] wrap the
// select-with-timeout safety valve, and [RequireEventually] polls a
// condition under the same bound, so tests that wait on goroutines
// (ingestion loops, fake kernels, reconcile passes) never hang the
// suite. They are the only place tests use wall-clock timeouts; every
// timing decision under test goes through clock.Fake.
//
// All helpers fail the test with t.Fatalf instead of returning errors.
package testutil
