// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/switchboard/lib/bus"
)

// State is a step of the handoff. A Protocol is Idle between runs.
type State int

const (
	Idle State = iota
	PreparingWatch
	StartingPeer
	ReleasingIdentity
	AwaitingPeerOwnership
	Dispatching
	AwaitingSessionEnd
	TracingPeer
	Reclaiming
)

var stateNames = [...]string{
	Idle:                  "idle",
	PreparingWatch:        "preparing-watch",
	StartingPeer:          "starting-peer",
	ReleasingIdentity:     "releasing-identity",
	AwaitingPeerOwnership: "awaiting-peer-ownership",
	Dispatching:           "dispatching",
	AwaitingSessionEnd:    "awaiting-session-end",
	TracingPeer:           "tracing-peer",
	Reclaiming:            "reclaiming",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Policy says what happens to the peer once it has the request.
type Policy int

const (
	// Transient peers run until their session ends; the switchboard
	// waits for that, terminates what is left of the peer, and only
	// then reclaims the identity.
	Transient Policy = iota

	// Persistent peers stay running for the life of the device. The
	// switchboard reclaims the identity right after dispatching and
	// leaves the peer alone.
	Persistent
)

func (p Policy) String() string {
	if p == Persistent {
		return "persistent"
	}
	return "transient"
}

// Errors from Run. All three are fatal to the daemon: after any of
// them the identity's ownership is no longer something the switchboard
// can reason about.
var (
	// ErrProtocolSetup means a watch, subscription, spawn, release, or
	// trace could not be established.
	ErrProtocolSetup = errors.New("handoff setup failed")

	// ErrDispatch means the peer rejected the request.
	ErrDispatch = errors.New("handoff dispatch failed")

	// ErrPeerTimeout means the peer never took the identity within
	// the configured timeout.
	ErrPeerTimeout = errors.New("peer did not take the identity")

	// ErrBusy means Run was called while another run was in progress.
	ErrBusy = errors.New("handoff already in progress")
)

// IsFatal reports whether err must terminate the daemon.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProtocolSetup) || errors.Is(err, ErrDispatch) || errors.Is(err, ErrPeerTimeout)
}

// Request is what the peer is asked to do. An empty URI means "bring
// the browser to the front".
type Request struct {
	URI       string
	NewWindow bool
}

// method picks the peer method and arguments for r.
func (r Request) method() (string, []any) {
	switch {
	case r.URI != "" && r.NewWindow:
		return "open_new_window", []any{r.URI}
	case r.URI != "":
		return "load_url", []any{r.URI}
	default:
		return "top_application", nil
	}
}

// Identity is the switchboard's claim on the shared bus name. Held
// tracks whether this process currently owns it; the protocol borrows
// the Identity for the duration of one run.
type Identity struct {
	conn bus.Conn
	name string
	held bool
}

// NewIdentity returns an unheld claim on name over conn.
func NewIdentity(conn bus.Conn, name string) *Identity {
	return &Identity{conn: conn, name: name}
}

// Name returns the bus name.
func (i *Identity) Name() string { return i.name }

// Conn returns the connection the name is claimed on.
func (i *Identity) Conn() bus.Conn { return i.conn }

// Held reports whether this process owns the name.
func (i *Identity) Held() bool { return i.held }

// Acquire claims the name, replacing any current owner that permits it.
func (i *Identity) Acquire() error {
	if err := i.conn.RequestName(i.name); err != nil {
		return err
	}
	i.held = true
	return nil
}

// Release gives up the name. Releasing an unheld identity does nothing.
func (i *Identity) Release() error {
	if !i.held {
		return nil
	}
	if err := i.conn.ReleaseName(i.name); err != nil {
		return err
	}
	i.held = false
	return nil
}

// Spawner starts a detached process. launch.Launcher implements it.
type Spawner interface {
	Start(argv []string) (int, error)
}

// Processes inspects and signals running processes. proctable.Table
// implements it.
type Processes interface {
	Running(name string) bool
	Alive(pid int) bool
	TerminateAll(name string, grace time.Duration) ([]int, error)
}

// DirWatch yields creation events for one directory. fswatch.Watch
// implements it.
type DirWatch interface {
	Next(ctx context.Context, name string) (string, error)
	Close() error
}
