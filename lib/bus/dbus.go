// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	daemonInterface   = "org.freedesktop.DBus"
	ownerChangeMember = "NameOwnerChanged"
	errorNoOwner      = "org.freedesktop.DBus.Error.NameHasNoOwner"
)

// DBus is a Conn backed by a godbus connection.
type DBus struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

// ConnectSession connects to the session bus named by
// DBUS_SESSION_BUS_ADDRESS.
func ConnectSession(logger *slog.Logger) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	return &DBus{conn: conn, logger: logger}, nil
}

// Connect connects to the bus at address, authenticates, and says
// Hello. Tests and non-default setups use it to reach a private bus.
func Connect(address string, logger *slog.Logger) (*DBus, error) {
	conn, err := dbus.Connect(address)
	if err != nil {
		return nil, fmt.Errorf("connecting to bus %s: %w", address, err)
	}
	return &DBus{conn: conn, logger: logger}, nil
}

// UniqueName returns the connection's unique name.
func (d *DBus) UniqueName() string {
	names := d.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// RequestName claims name with REPLACE_EXISTING and DO_NOT_QUEUE.
func (d *DBus) RequestName(name string) error {
	reply, err := d.conn.RequestName(name, dbus.NameFlagReplaceExisting|dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		return fmt.Errorf("requesting %s (reply %d): %w", name, reply, ErrNotPrimaryOwner)
	}
	return nil
}

// ReleaseName gives up name.
func (d *DBus) ReleaseName(name string) error {
	if _, err := d.conn.ReleaseName(name); err != nil {
		return fmt.Errorf("releasing %s: %w", name, err)
	}
	return nil
}

// NameOwner asks the bus daemon who owns name.
func (d *DBus) NameOwner(name string) (string, error) {
	var owner string
	err := d.conn.BusObject().Call(daemonInterface+".GetNameOwner", 0, name).Store(&owner)
	if err != nil {
		var dbusError dbus.Error
		if errors.As(err, &dbusError) && dbusError.Name == errorNoOwner {
			return "", nil
		}
		return "", fmt.Errorf("querying owner of %s: %w", name, err)
	}
	return owner, nil
}

// WatchOwner installs a NameOwnerChanged match rule filtered on name
// and starts forwarding matching signals.
func (d *DBus) WatchOwner(name string) (Subscription, error) {
	options := []dbus.MatchOption{
		dbus.WithMatchInterface(daemonInterface),
		dbus.WithMatchMember(ownerChangeMember),
		dbus.WithMatchArg(0, name),
	}
	if err := d.conn.AddMatchSignal(options...); err != nil {
		return nil, fmt.Errorf("subscribing to owner changes of %s: %w", name, err)
	}

	signals := make(chan *dbus.Signal, 16)
	d.conn.Signal(signals)

	subscription := &dbusSubscription{
		conn:    d.conn,
		options: options,
		signals: signals,
		changes: make(chan OwnerChange, 16),
		stop:    make(chan struct{}),
	}
	go subscription.forward(name)
	return subscription, nil
}

// Call invokes method on target.
func (d *DBus) Call(ctx context.Context, target Address, method string, args ...any) error {
	object := d.conn.Object(target.Service, dbus.ObjectPath(target.Path))
	call := object.CallWithContext(ctx, target.Interface+"."+method, 0, args...)
	if call.Err != nil {
		return fmt.Errorf("calling %s on %s: %w", method, target.Service, call.Err)
	}
	return nil
}

// Export publishes object's methods at path under iface.
func (d *DBus) Export(object any, path, iface string, methods map[string]string) error {
	var err error
	if methods == nil {
		err = d.conn.Export(object, dbus.ObjectPath(path), iface)
	} else {
		err = d.conn.ExportWithMap(object, methods, dbus.ObjectPath(path), iface)
	}
	if err != nil {
		return fmt.Errorf("exporting %s at %s: %w", iface, path, err)
	}
	return nil
}

// Close disconnects from the bus.
func (d *DBus) Close() error {
	return d.conn.Close()
}

type dbusSubscription struct {
	conn    *dbus.Conn
	options []dbus.MatchOption
	signals chan *dbus.Signal
	changes chan OwnerChange
	stop    chan struct{}
	once    sync.Once
	err     error
}

func (s *dbusSubscription) Changes() <-chan OwnerChange { return s.changes }

func (s *dbusSubscription) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.conn.RemoveSignal(s.signals)
		s.err = s.conn.RemoveMatchSignal(s.options...)
	})
	return s.err
}

// forward filters the connection's signal stream down to
// NameOwnerChanged for name. The connection delivers every signal it
// receives to every registered channel, so the filter is required even
// with the match rule in place.
func (s *dbusSubscription) forward(name string) {
	defer close(s.changes)
	for {
		select {
		case <-s.stop:
			return
		case signal, ok := <-s.signals:
			if !ok {
				return
			}
			change, matched := ownerChangeFromSignal(signal, name)
			if !matched {
				continue
			}
			select {
			case s.changes <- change:
			case <-s.stop:
				return
			}
		}
	}
}

func ownerChangeFromSignal(signal *dbus.Signal, name string) (OwnerChange, bool) {
	if signal == nil || signal.Name != daemonInterface+"."+ownerChangeMember || len(signal.Body) != 3 {
		return OwnerChange{}, false
	}
	changedName, ok0 := signal.Body[0].(string)
	previous, ok1 := signal.Body[1].(string)
	next, ok2 := signal.Body[2].(string)
	if !ok0 || !ok1 || !ok2 || changedName != name {
		return OwnerChange{}, false
	}
	return OwnerChange{Name: changedName, PreviousOwner: previous, NewOwner: next}, true
}
