// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus is the switchboard's view of the D-Bus session bus.
//
// The handoff protocol needs only a handful of bus operations: claim or
// give up a well-known name, ask who owns a name, watch a name's owner
// change, call a method on a peer object, and export an object. Conn
// names exactly those. The production implementation wraps godbus; the
// protocol's tests substitute an in-memory fake.
package bus

import (
	"context"
	"errors"
	"fmt"
)

// Address names a method target: a bus service, an object path on that
// service, and the interface the method belongs to.
type Address struct {
	Service   string
	Path      string
	Interface string
}

func (a Address) String() string {
	return fmt.Sprintf("%s %s %s", a.Service, a.Path, a.Interface)
}

// IsZero reports whether no target has been set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// OwnerChange is one NameOwnerChanged notification. An empty
// PreviousOwner means the name was unowned; an empty NewOwner means it
// has been released.
type OwnerChange struct {
	Name          string
	PreviousOwner string
	NewOwner      string
}

// Subscription delivers owner changes for one name until closed.
type Subscription interface {
	// Changes yields owner changes in the order the bus emitted them.
	Changes() <-chan OwnerChange

	// Close stops delivery and removes the bus match rule. It is safe
	// to call more than once.
	Close() error
}

// ErrNotPrimaryOwner is returned by RequestName when the bus accepted
// the request but another connection still owns the name.
var ErrNotPrimaryOwner = errors.New("bus: not primary owner of name")

// Conn is a connection to a message bus.
type Conn interface {
	// UniqueName is this connection's unique bus name (":1.42").
	UniqueName() string

	// RequestName claims name, replacing any current owner that allows
	// replacement and never queueing. It fails with ErrNotPrimaryOwner
	// if this connection did not end up owning the name.
	RequestName(name string) error

	// ReleaseName gives up name.
	ReleaseName(name string) error

	// NameOwner returns the unique name currently owning name, or ""
	// when the name has no owner.
	NameOwner(name string) (string, error)

	// WatchOwner subscribes to owner changes of name. The subscription
	// is active when WatchOwner returns: no change after that point is
	// missed.
	WatchOwner(name string) (Subscription, error)

	// Call invokes method on target and waits for the reply.
	Call(ctx context.Context, target Address, method string, args ...any) error

	// Export publishes the exported methods of object at path under
	// iface. methods maps Go method names to bus member names; nil
	// exports every method under its Go name.
	Export(object any, path, iface string, methods map[string]string) error

	// Close disconnects from the bus.
	Close() error
}
