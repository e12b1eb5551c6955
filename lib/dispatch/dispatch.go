// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes an "open this address" request to the active
// browser strategy.
//
// The Dispatcher owns the LaunchContext: the operating mode, the
// resolved strategy, the user's command template, and the switchboard's
// claim on the browser bus name. A request is normalized (a bare
// absolute path becomes a file:// URI) and then handled by exactly one
// strategy:
//
//   - FixedBinary: if the browser is already running and listens on
//     the bus, the address is sent to it there; otherwise the binary is
//     executed with the address as its argument.
//   - ShellTemplate: the address is quoted and spliced into the
//     template, which runs under /bin/sh.
//   - IdentityHandoff: the handoff protocol gives the bus name to the
//     peer browser, delivers the request, and takes the name back.
//
// Nothing is retried. A failure to launch a browser is returned and
// the daemon keeps running; a handoff failure for which
// [handoff.IsFatal] is true is returned unchanged and the daemon must
// exit.
//
// Dispatcher is not safe for concurrent use. The daemon calls it only
// from its main loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/switchboard/lib/handoff"
	"github.com/bureau-foundation/switchboard/lib/launch"
	"github.com/bureau-foundation/switchboard/lib/shellquote"
	"github.com/bureau-foundation/switchboard/lib/strategy"
)

// NewWindow is the address legacy callers pass to mean "no address,
// open a new window". It is treated exactly like an absent URI.
const NewWindow = "new_window"

// OpenAddressMethod is the bus method a running FixedBinary browser
// accepts addresses on.
const OpenAddressMethod = "OpenAddress"

// Request is one incoming request.
type Request struct {
	// URI is the address to open. Nil, empty, or NewWindow means
	// "bring the browser to the front".
	URI *string

	// WantNewWindow asks for a new window rather than reusing one.
	// Only the identity-handoff strategy distinguishes the two.
	WantNewWindow bool

	// ForceHandoff routes the request through the identity-handoff
	// browser whatever the configured default.
	ForceHandoff bool
}

// URI returns a pointer to address, or nil when address is empty.
func URI(address string) *string {
	if address == "" {
		return nil
	}
	return &address
}

// Launcher starts browsers. launch.Launcher implements it.
type Launcher interface {
	Binary(ctx context.Context, path string, args ...string) error
	Shell(ctx context.Context, commandLine string) error
}

// Handoff runs the identity handoff protocol. handoff.Protocol
// implements it.
type Handoff interface {
	Run(ctx context.Context, identity *handoff.Identity, target strategy.IdentityHandoff, policy handoff.Policy, request handoff.Request) error
	State() handoff.State
}

// Processes finds running browsers. proctable.Table implements it.
type Processes interface {
	Running(name string) bool
}

// LaunchContext is the state every strategy works from. The
// Dispatcher owns it; the handoff protocol borrows Identity for the
// length of one run.
type LaunchContext struct {
	Mode     launch.Mode
	Strategy strategy.Strategy

	// Template is the user's command template for the "other"
	// browser. Reload replaces it wholesale.
	Template string

	// Identity is the switchboard's claim on the browser bus name.
	// Identity.Held is true whenever no handoff is in progress.
	Identity *handoff.Identity

	// PersistentPeer keeps the stock browser running after a
	// handoff instead of waiting for its session to end.
	PersistentPeer bool
}

// Settings is the reloadable part of the LaunchContext.
type Settings struct {
	DefaultBrowser string
	Template       string
	PersistentPeer bool
}

// Config holds a Dispatcher's collaborators.
type Config struct {
	Registry  *strategy.Registry
	Launcher  Launcher
	Handoff   Handoff
	Processes Processes
	Logger    *slog.Logger
}

// Dispatcher routes requests to the active strategy.
type Dispatcher struct {
	registry  *strategy.Registry
	launcher  Launcher
	handoff   Handoff
	processes Processes
	logger    *slog.Logger

	context LaunchContext
	pending *Settings
}

// New returns a Dispatcher whose strategy is resolved from settings.
func New(config Config, mode launch.Mode, identity *handoff.Identity, settings Settings) *Dispatcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		registry:  config.Registry,
		launcher:  config.Launcher,
		handoff:   config.Handoff,
		processes: config.Processes,
		logger:    logger,
		context:   LaunchContext{Mode: mode, Identity: identity},
	}
	d.apply(settings)
	return d
}

// Context returns a copy of the current LaunchContext.
func (d *Dispatcher) Context() LaunchContext {
	return d.context
}

// Reload replaces the strategy and template. While a handoff is in
// progress the new settings are held and applied once it finishes, so
// a run never sees its context change underneath it. A later Reload
// before then replaces the held settings.
func (d *Dispatcher) Reload(settings Settings) {
	if d.handoff != nil && d.handoff.State() != handoff.Idle {
		d.logger.Info("handoff in progress, deferring reload", "default_browser", settings.DefaultBrowser)
		d.pending = &settings
		return
	}
	d.apply(settings)
}

func (d *Dispatcher) apply(settings Settings) {
	d.pending = nil
	d.context.Strategy = d.registry.Resolve(settings.DefaultBrowser, settings.Template)
	d.context.Template = settings.Template
	d.context.PersistentPeer = settings.PersistentPeer
	d.logger.Info("browser selected",
		"default_browser", settings.DefaultBrowser,
		"strategy", d.context.Strategy.Browser(),
		"persistent_peer", settings.PersistentPeer,
	)
}

// Dispatch handles one request with the active strategy.
func (d *Dispatcher) Dispatch(ctx context.Context, request Request) error {
	address := normalize(request.URI)

	active := d.context.Strategy
	if request.ForceHandoff {
		target, ok := d.registry.Handoff()
		if !ok {
			return errors.New("no identity-handoff browser is known")
		}
		active = target
	}

	logger := d.logger.With("browser", active.Browser(), "uri", address)
	switch target := active.(type) {
	case strategy.FixedBinary:
		return d.fixedBinary(ctx, target, address, logger)
	case strategy.ShellTemplate:
		return d.shellTemplate(ctx, target, address, logger)
	case strategy.IdentityHandoff:
		return d.identityHandoff(ctx, target, address, request.WantNewWindow)
	default:
		panic(fmt.Sprintf("dispatch: unhandled strategy %T", active))
	}
}

// normalize turns the request URI into the address handed to the
// browser. "" means absent.
func normalize(uri *string) string {
	if uri == nil || *uri == NewWindow {
		return ""
	}
	if strings.HasPrefix(*uri, "/") {
		return "file://" + *uri
	}
	return *uri
}

func (d *Dispatcher) fixedBinary(ctx context.Context, target strategy.FixedBinary, address string, logger *slog.Logger) error {
	argument := address
	if argument == "" {
		argument = target.NewWindowArgument
	}

	if !target.Remote.IsZero() && target.ProcessName != "" && d.processes.Running(target.ProcessName) {
		err := d.context.Identity.Conn().Call(ctx, target.Remote, OpenAddressMethod, argument)
		if err == nil {
			logger.Info("sent address to running browser", "remote", target.Remote.String())
			return nil
		}
		logger.Warn("running browser did not take the address, starting another", "error", err)
	}

	var args []string
	if argument != "" {
		args = []string{argument}
	}
	logger.Info("launching browser", "path", target.Path)
	if err := d.launcher.Binary(ctx, target.Path, args...); err != nil {
		return fmt.Errorf("launching %s: %w", target.ID, err)
	}
	return nil
}

func (d *Dispatcher) shellTemplate(ctx context.Context, target strategy.ShellTemplate, address string, logger *slog.Logger) error {
	commandLine := shellquote.Command(target.Pattern, address)
	logger.Info("launching browser command", "command", commandLine)
	if err := d.launcher.Shell(ctx, commandLine); err != nil {
		return fmt.Errorf("launching %s: %w", target.ID, err)
	}
	return nil
}

func (d *Dispatcher) identityHandoff(ctx context.Context, target strategy.IdentityHandoff, address string, newWindow bool) error {
	policy := handoff.Transient
	if d.context.PersistentPeer {
		policy = handoff.Persistent
	}

	err := d.handoff.Run(ctx, d.context.Identity, target, policy, handoff.Request{URI: address, NewWindow: newWindow})
	if d.pending != nil {
		d.apply(*d.pending)
	}
	return err
}
