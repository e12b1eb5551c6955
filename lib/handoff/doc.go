// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package handoff passes the switchboard's bus identity to a peer
// browser and takes it back when the peer is done.
//
// The stock browser answers requests under the same well-known bus name
// the switchboard owns (com.nokia.osso_browser). Only one process may
// own that name, so to hand a request to the stock browser the
// switchboard must step aside, let the browser claim the name, deliver
// the request to it, and reclaim the name once the browser's session is
// over. A Protocol runs that exchange as a state machine:
//
//	Idle
//	  → PreparingWatch         subscribe to owner changes, watch the session directory
//	  → StartingPeer           start the peer unless it is already running
//	  → ReleasingIdentity      give up the name if held
//	  → AwaitingPeerOwnership  until the peer owns the name
//	  → Dispatching            call load_url, open_new_window, or top_application
//	  → AwaitingSessionEnd     until the session artifact is recreated by a live engine
//	  → TracingPeer            ptrace the engine until it exits
//	  → Reclaiming             tear down watches, stop the peer, claim the name
//	  → Idle
//
// A Persistent peer skips AwaitingSessionEnd and TracingPeer: the
// switchboard reclaims the name right after dispatching and leaves the
// peer running.
//
// Both watches are installed before the peer is started and before the
// name is released, so neither the peer's claim on the name nor its
// first session artifact can slip past unobserved. They are torn down
// on every path out of Run, before the name is claimed again.
//
// Failures to set up the exchange or to deliver the request are fatal
// (see IsFatal): the caller cannot know who owns the name afterwards
// and must exit rather than keep serving.
package handoff
