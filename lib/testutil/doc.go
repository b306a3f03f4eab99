// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a time.After fallback) so that individual
// tests do not call time.After directly. They are the only place in the
// test suite where real wall-clock timeouts are used; everything else
// runs on a clock.FakeClock.
//
// [DiscardLogger] and [CapturingLogger] build *slog.Logger values for
// components that take an injected logger.
//
// [UniqueID] generates monotonically increasing identifiers, typically
// monitor ids that must differ between parallel tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
