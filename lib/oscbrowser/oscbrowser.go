// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package oscbrowser exports the com.nokia.osso_browser interface that
// applications call to open addresses.
//
// Every method turns into a dispatch.Request delivered on the Calls
// channel. Bus methods run on the bus library's goroutines; the daemon
// reads Calls from its main loop, so the dispatcher never runs
// concurrently with itself. A method returns as soon as the main loop
// has taken the request. If the loop does not take it within the
// accept timeout (it is busy with a handoff), the caller gets an
// ErrorBusy reply rather than hanging until its own call timeout.
//
// The _sb variants carry a fullscreen flag that the switchboard does
// not act on; they behave like their plain counterparts.
package oscbrowser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/bureau-foundation/switchboard/lib/bus"
	"github.com/bureau-foundation/switchboard/lib/clock"
	"github.com/bureau-foundation/switchboard/lib/dispatch"
)

// Interface is the exported interface name.
const Interface = "com.nokia.osso_browser"

// Paths are the object paths the service is exported at.
var Paths = []string{"/com/nokia/osso_browser", "/com/nokia/osso_browser/request"}

// ErrorBusy is the bus error name returned when the main loop did not
// take a request in time.
const ErrorBusy = "com.nokia.osso_browser.Error.Busy"

// DefaultAcceptTimeout bounds how long a caller waits for the main
// loop.
const DefaultAcceptTimeout = 5 * time.Second

// methods maps Go method names to bus member names.
var methods = map[string]string{
	"LoadURL":                 "load_url",
	"LoadURLSB":               "load_url_sb",
	"MimeOpen":                "mime_open",
	"OpenNewWindow":           "open_new_window",
	"OpenNewWindowSB":         "open_new_window_sb",
	"TopApplication":          "top_application",
	"SwitchboardLaunchMicrob": "switchboard_launch_microb",
}

// Call is one request taken from the bus.
type Call struct {
	// Method is the bus member that was called.
	Method  string
	Request dispatch.Request
}

// Service is the exported object.
type Service struct {
	calls         chan Call
	clock         clock.Clock
	logger        *slog.Logger
	acceptTimeout time.Duration
}

// New returns a service. A zero acceptTimeout means
// DefaultAcceptTimeout.
func New(logger *slog.Logger, clk clock.Clock, acceptTimeout time.Duration) *Service {
	if acceptTimeout <= 0 {
		acceptTimeout = DefaultAcceptTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		calls:         make(chan Call),
		clock:         clk,
		logger:        logger,
		acceptTimeout: acceptTimeout,
	}
}

// Calls yields requests in arrival order.
func (s *Service) Calls() <-chan Call { return s.calls }

// Export publishes the service and its introspection data at every
// path in Paths.
func (s *Service) Export(conn bus.Conn) error {
	node := introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: Interface, Methods: introspectMethods()},
		},
	}
	for _, path := range Paths {
		if err := conn.Export(s, path, Interface, methods); err != nil {
			return err
		}
		node.Name = path
		if err := conn.Export(introspect.NewIntrospectable(&node), path, "org.freedesktop.DBus.Introspectable", nil); err != nil {
			return err
		}
	}
	return nil
}

func introspectMethods() []introspect.Method {
	uri := introspect.Arg{Name: "uri", Type: "s", Direction: "in"}
	fullscreen := introspect.Arg{Name: "fullscreen", Type: "b", Direction: "in"}
	return []introspect.Method{
		{Name: "load_url", Args: []introspect.Arg{uri}},
		{Name: "load_url_sb", Args: []introspect.Arg{uri, fullscreen}},
		{Name: "mime_open", Args: []introspect.Arg{uri}},
		{Name: "open_new_window", Args: []introspect.Arg{uri}},
		{Name: "open_new_window_sb", Args: []introspect.Arg{uri, fullscreen}},
		{Name: "top_application"},
		{Name: "switchboard_launch_microb", Args: []introspect.Arg{uri}},
	}
}

// submit hands call to the main loop.
func (s *Service) submit(call Call) *dbus.Error {
	select {
	case s.calls <- call:
		s.logger.Debug("request accepted", "method", call.Method)
		return nil
	case <-s.clock.After(s.acceptTimeout):
		s.logger.Warn("request not accepted in time", "method", call.Method, "timeout", s.acceptTimeout)
		return dbus.NewError(ErrorBusy, []any{fmt.Sprintf("switchboard busy, %s not accepted within %s", call.Method, s.acceptTimeout)})
	}
}

// LoadURL opens uri in the default browser.
func (s *Service) LoadURL(uri string) *dbus.Error {
	return s.submit(Call{Method: "load_url", Request: dispatch.Request{URI: dispatch.URI(uri)}})
}

// LoadURLSB is LoadURL with an ignored fullscreen flag.
func (s *Service) LoadURLSB(uri string, fullscreen bool) *dbus.Error {
	return s.submit(Call{Method: "load_url_sb", Request: dispatch.Request{URI: dispatch.URI(uri)}})
}

// MimeOpen opens a file by its address.
func (s *Service) MimeOpen(uri string) *dbus.Error {
	return s.submit(Call{Method: "mime_open", Request: dispatch.Request{URI: dispatch.URI(uri)}})
}

// OpenNewWindow opens uri in a new window.
func (s *Service) OpenNewWindow(uri string) *dbus.Error {
	return s.submit(Call{Method: "open_new_window", Request: dispatch.Request{URI: dispatch.URI(uri), WantNewWindow: true}})
}

// OpenNewWindowSB is OpenNewWindow with an ignored fullscreen flag.
func (s *Service) OpenNewWindowSB(uri string, fullscreen bool) *dbus.Error {
	return s.submit(Call{Method: "open_new_window_sb", Request: dispatch.Request{URI: dispatch.URI(uri), WantNewWindow: true}})
}

// TopApplication brings the stock browser to the front.
func (s *Service) TopApplication() *dbus.Error {
	return s.submit(Call{Method: "top_application", Request: dispatch.Request{ForceHandoff: true}})
}

// SwitchboardLaunchMicrob opens uri in the stock browser whatever the
// configured default. It exists for the browser --url wrapper.
func (s *Service) SwitchboardLaunchMicrob(uri string) *dbus.Error {
	return s.submit(Call{Method: "switchboard_launch_microb", Request: dispatch.Request{URI: dispatch.URI(uri), ForceHandoff: true}})
}
