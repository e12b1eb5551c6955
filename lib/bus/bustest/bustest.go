// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bustest provides an in-memory message bus for tests. Several
// connections share one Bus; name ownership, owner-change signals, and
// method calls behave like a real bus daemon closely enough to drive
// the handoff protocol end to end.
package bustest

import (
	"context"
	"fmt"
	"sync"

	"github.com/bureau-foundation/switchboard/lib/bus"
)

// Handler serves method calls addressed to a service.
type Handler func(ctx context.Context, target bus.Address, method string, args []any) error

// Call records one method call made through any connection.
type Call struct {
	From   string
	Target bus.Address
	Method string
	Args   []any
}

// Bus is the shared in-memory daemon.
type Bus struct {
	mu            sync.Mutex
	nextID        int
	owners        map[string]string
	subscriptions map[string][]*subscription
	handlers      map[string]Handler
	exports       map[string]any
	calls         []Call
	history       []bus.OwnerChange
	replaceable   map[string]bool
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		owners:        make(map[string]string),
		subscriptions: make(map[string][]*subscription),
		handlers:      make(map[string]Handler),
		exports:       make(map[string]any),
		replaceable:   make(map[string]bool),
	}
}

// Connect opens a new connection with a fresh unique name.
func (b *Bus) Connect() *Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return &Conn{bus: b, unique: fmt.Sprintf(":1.%d", b.nextID)}
}

// Handle routes calls for service to handler. A call is only delivered
// while some connection owns service, matching a real bus.
func (b *Bus) Handle(service string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[service] = handler
}

// Owner returns the current owner of name.
func (b *Bus) Owner(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owners[name]
}

// Calls returns every method call made so far.
func (b *Bus) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// History returns every owner change so far, in order.
func (b *Bus) History() []bus.OwnerChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.OwnerChange(nil), b.history...)
}

// Exported returns the object exported at path under iface, or nil.
func (b *Bus) Exported(path, iface string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exports[path+" "+iface]
}

// setOwnerLocked changes the owner of name and notifies subscribers.
func (b *Bus) setOwnerLocked(name, owner string) {
	previous := b.owners[name]
	if previous == owner {
		return
	}
	if owner == "" {
		delete(b.owners, name)
	} else {
		b.owners[name] = owner
	}
	change := bus.OwnerChange{Name: name, PreviousOwner: previous, NewOwner: owner}
	b.history = append(b.history, change)
	for _, sub := range b.subscriptions[name] {
		sub.deliver(change)
	}
}

// Conn is one connection to a Bus. It implements bus.Conn.
type Conn struct {
	bus    *Bus
	unique string

	// FailWatch makes WatchOwner fail, for setup-failure tests.
	FailWatch error

	// FailRequest makes RequestName fail.
	FailRequest error

	// Exclusive marks names claimed by this connection as refusing
	// replacement, the way a peer that did not pass ALLOW_REPLACEMENT
	// behaves. A later RequestName from another connection then fails
	// with bus.ErrNotPrimaryOwner until this connection lets go.
	Exclusive bool
}

var _ bus.Conn = (*Conn)(nil)

// UniqueName returns the connection's unique name.
func (c *Conn) UniqueName() string { return c.unique }

// RequestName takes name, replacing the current owner unless that
// owner claimed it exclusively.
func (c *Conn) RequestName(name string) error {
	if c.FailRequest != nil {
		return c.FailRequest
	}
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	current := c.bus.owners[name]
	if current != "" && current != c.unique && !c.bus.replaceable[name] {
		return fmt.Errorf("bustest: %s held by %s: %w", name, current, bus.ErrNotPrimaryOwner)
	}
	c.bus.replaceable[name] = !c.Exclusive
	c.bus.setOwnerLocked(name, c.unique)
	return nil
}

// ReleaseName drops name if this connection owns it.
func (c *Conn) ReleaseName(name string) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if c.bus.owners[name] == c.unique {
		c.bus.setOwnerLocked(name, "")
	}
	return nil
}

// NameOwner returns the owner of name.
func (c *Conn) NameOwner(name string) (string, error) {
	return c.bus.Owner(name), nil
}

// WatchOwner subscribes to owner changes of name.
func (c *Conn) WatchOwner(name string) (bus.Subscription, error) {
	if c.FailWatch != nil {
		return nil, c.FailWatch
	}
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	sub := &subscription{bus: c.bus, name: name, changes: make(chan bus.OwnerChange, 64)}
	c.bus.subscriptions[name] = append(c.bus.subscriptions[name], sub)
	return sub, nil
}

// Call delivers method to the handler registered for the target
// service.
func (c *Conn) Call(ctx context.Context, target bus.Address, method string, args ...any) error {
	c.bus.mu.Lock()
	c.bus.calls = append(c.bus.calls, Call{From: c.unique, Target: target, Method: method, Args: args})
	handler := c.bus.handlers[target.Service]
	_, owned := c.bus.owners[target.Service]
	c.bus.mu.Unlock()

	if handler == nil || !owned {
		return fmt.Errorf("bustest: service %s unknown", target.Service)
	}
	return handler(ctx, target, method, args)
}

// Export records object at path under iface.
func (c *Conn) Export(object any, path, iface string, methods map[string]string) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	c.bus.exports[path+" "+iface] = object
	return nil
}

// Close releases every name this connection owns.
func (c *Conn) Close() error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	for name, owner := range c.bus.owners {
		if owner == c.unique {
			c.bus.setOwnerLocked(name, "")
		}
	}
	return nil
}

type subscription struct {
	bus     *Bus
	name    string
	changes chan bus.OwnerChange
	closed  bool
}

func (s *subscription) Changes() <-chan bus.OwnerChange { return s.changes }

// deliver is called with the bus lock held.
func (s *subscription) deliver(change bus.OwnerChange) {
	if s.closed {
		return
	}
	select {
	case s.changes <- change:
	default:
		panic("bustest: subscription buffer full")
	}
}

func (s *subscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	subs := s.bus.subscriptions[s.name]
	for i, sub := range subs {
		if sub == s {
			s.bus.subscriptions[s.name] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(s.changes)
	return nil
}

// Subscribers returns the number of open subscriptions for name.
func (b *Bus) Subscribers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions[name])
}
