// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code receives Real(). Tests receive Fake(), whose time
// stands still until Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go table.Terminate(pid, time.Second) // sleeps on c
//	c.WaitForTimers(1)                   // the sleep has registered
//	c.Advance(time.Second)               // and now fires
//
// WaitForTimers closes the race between a goroutine registering a wait
// and the test moving time forward.
package clock
