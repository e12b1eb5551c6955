// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the exit path shared by the switchboard
// binaries. Fatal is the one place raw output is written: it runs when
// the structured logger may not exist yet, or after the handoff has
// left the bus name in a state the daemon cannot recover from.
package process
