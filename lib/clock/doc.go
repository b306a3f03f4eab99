// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Monitors stamp entries with Clock.Now and pipe receivers bound their
// wait for a failed child with Clock.After. Tests substitute Fake() so
// that both are deterministic:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	receiver := pipelog.NewReceiver(destination, pipelog.ReceiverOptions{Clock: fake})
//	go func() { status <- receiver.WaitEnd(true) }()
//	fake.WaitForTimers(1)
//	fake.Advance(500 * time.Millisecond)
//
// WaitForTimers blocks until the goroutine under test has registered
// its timer, which removes the race between registration and Advance.
package clock
