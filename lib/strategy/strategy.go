// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package strategy maps a configured browser identifier to the way the
// switchboard must launch that browser.
//
// There are three launch strategies. Most browsers are a FixedBinary,
// executed directly with the address as an argument, or a
// ShellTemplate, where the address is quoted and spliced into a
// command line. The stock browser is different: it shares the
// switchboard's bus identity and has to be driven through the identity
// handoff, so it is an IdentityHandoff.
//
// Resolution never fails. An empty, unknown, uninstalled, or
// incompletely configured choice resolves to the default browser and
// is logged.
package strategy

import (
	"github.com/bureau-foundation/switchboard/lib/bus"
)

// Strategy is one of FixedBinary, IdentityHandoff, or ShellTemplate.
// The interface is sealed; a type switch over the three is exhaustive.
type Strategy interface {
	// Browser returns the identifier of the browser this strategy
	// launches.
	Browser() string

	sealed()
}

// FixedBinary executes a known browser binary directly.
type FixedBinary struct {
	ID   string
	Path string

	// Remote, when set, is where the browser accepts an OpenAddress
	// call if it is already running. A running instance gets the
	// address over the bus instead of a second process.
	Remote bus.Address

	// ProcessName identifies a running instance for the Remote check.
	ProcessName string

	// NewWindowArgument is passed instead of an address when the
	// request carries none. Empty means no argument at all.
	NewWindowArgument string
}

// IdentityHandoff drives a browser that shares the switchboard's bus
// identity.
type IdentityHandoff struct {
	ID string

	// PeerStart is the argv that starts the peer when it is not
	// already running.
	PeerStart []string

	// PeerProcess is the process name used to detect a running peer
	// and to terminate it when the session ends.
	PeerProcess string

	// Identity is the bus name handed back and forth.
	Identity string

	// RequestChannel is the peer object that accepts load_url,
	// open_new_window, and top_application once the peer owns
	// Identity.
	RequestChannel bus.Address

	// SessionDir is watched for SessionArtifact being recreated, which
	// happens when the peer's engine restarts after its last window
	// closes.
	SessionDir      string
	SessionArtifact string
}

// ShellTemplate formats the quoted address into a command line run by
// the shell.
type ShellTemplate struct {
	ID      string
	Pattern string
}

func (s FixedBinary) Browser() string     { return s.ID }
func (s IdentityHandoff) Browser() string { return s.ID }
func (s ShellTemplate) Browser() string   { return s.ID }

func (FixedBinary) sealed()     {}
func (IdentityHandoff) sealed() {}
func (ShellTemplate) sealed()   {}
