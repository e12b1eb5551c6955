// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// browser-switchboard owns the com.nokia.osso_browser bus name and
// routes every "open this address" request to the user's chosen
// browser.
//
// In one-shot mode (the default, for bus activation) the daemon handles
// a single request and exits. With continuous_mode set it keeps
// running: SIGHUP rereads the configuration and SIGCHLD collects
// finished browsers. SIGINT and SIGTERM stop it in either mode.
//
// A handoff failure that leaves the bus name's ownership unknown is
// fatal: the daemon logs it and exits with status 1, and the next
// request reactivates a fresh instance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/switchboard/lib/bus"
	"github.com/bureau-foundation/switchboard/lib/clock"
	"github.com/bureau-foundation/switchboard/lib/config"
	"github.com/bureau-foundation/switchboard/lib/dispatch"
	"github.com/bureau-foundation/switchboard/lib/fswatch"
	"github.com/bureau-foundation/switchboard/lib/handoff"
	"github.com/bureau-foundation/switchboard/lib/instancelock"
	"github.com/bureau-foundation/switchboard/lib/launch"
	"github.com/bureau-foundation/switchboard/lib/logging"
	"github.com/bureau-foundation/switchboard/lib/oscbrowser"
	"github.com/bureau-foundation/switchboard/lib/process"
	"github.com/bureau-foundation/switchboard/lib/proctable"
	"github.com/bureau-foundation/switchboard/lib/strategy"
	"github.com/bureau-foundation/switchboard/lib/trace"
	"github.com/bureau-foundation/switchboard/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		home        string
		busAddress  string
		continuous  bool
		debug       bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("browser-switchboard", pflag.ContinueOnError)
	flagSet.StringVar(&home, "home", config.Home(), "home directory holding .config/browser-switchboard")
	flagSet.StringVar(&busAddress, "bus-address", "", "connect to this bus instead of the session bus")
	flagSet.BoolVar(&continuous, "continuous", false, "keep running after the first request, overriding continuous_mode")
	flagSet.BoolVar(&debug, "debug", false, "log handoff state transitions and other detail")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println(version.Line("browser-switchboard"))
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, configErr := config.Load(home)
	if continuous {
		cfg.ContinuousMode = true
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger, err := logging.New(logging.Options{Target: cfg.Logging, Level: level})
	if err != nil {
		return err
	}
	defer logger.Close()
	if configErr != nil {
		logger.Warn("configuration unreadable, using defaults", "error", configErr)
	}

	mode := launchMode(cfg)
	logger.Info("browser-switchboard starting",
		"version", version.Info(),
		"config", cfg.Path,
		"mode", mode.String(),
		"default_browser", cfg.DefaultBrowser,
	)

	lock, err := instancelock.Acquire(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	var conn *bus.DBus
	if busAddress != "" {
		conn, err = bus.Connect(busAddress, logger.Logger)
	} else {
		conn, err = bus.ConnectSession(logger.Logger)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	table := &proctable.Table{}
	launcher := &launch.Launcher{Mode: mode, Logger: logger.Logger}
	protocol := &handoff.Protocol{
		Spawner:   launcher,
		Processes: table,
		WatchDir: func(directory string) (handoff.DirWatch, error) {
			watch, err := fswatch.WatchDir(directory)
			if err != nil {
				return nil, err
			}
			return watch, nil
		},
		Tracer:   trace.Ptrace{},
		Clock:    clock.Real(),
		Logger:   logger.Logger,
		StateDir: cfg.StateDir,
	}
	applyProtocolSettings(protocol, cfg)
	protocol.RecoverOrphan()

	identity := handoff.NewIdentity(conn, strategy.Identity)
	if err := identity.Acquire(); err != nil {
		return fmt.Errorf("claiming %s: %w", strategy.Identity, err)
	}

	registry := strategy.NewRegistry(strategy.KnownBrowsers(home), nil, logger.Logger)
	dispatcher := dispatch.New(dispatch.Config{
		Registry:  registry,
		Launcher:  launcher,
		Handoff:   protocol,
		Processes: table,
		Logger:    logger.Logger,
	}, mode, identity, settingsFrom(cfg))

	service := oscbrowser.New(logger.Logger, clock.Real(), 0)
	if err := service.Export(conn); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGCHLD)
	defer signal.Stop(signals)

	d := &daemon{
		dispatcher: dispatcher,
		calls:      service.Calls(),
		signals:    signals,
		reap:       launcher.Reap,
		reload: func() dispatch.Settings {
			reloaded, err := config.Load(home)
			if err != nil {
				logger.Warn("configuration unreadable, using defaults", "error", err)
			}
			applyProtocolSettings(protocol, reloaded)
			return settingsFrom(reloaded)
		},
		continuous: bool(cfg.ContinuousMode),
		logger:     logger.Logger,
	}
	return d.loop(ctx)
}

// launchMode maps continuous_mode onto how browsers are started: a
// one-shot daemon waits for them, a continuous one detaches them.
func launchMode(cfg *config.Config) launch.Mode {
	if cfg.ContinuousMode {
		return launch.Persistent
	}
	return launch.OneShot
}

func settingsFrom(cfg *config.Config) dispatch.Settings {
	return dispatch.Settings{
		DefaultBrowser: cfg.DefaultBrowser,
		Template:       cfg.OtherBrowserCmd,
		PersistentPeer: cfg.PersistentPeer(),
	}
}

// applyProtocolSettings copies the handoff tunables. The protocol reads
// them at the start of each run, and the main loop only calls this
// between runs.
func applyProtocolSettings(protocol *handoff.Protocol, cfg *config.Config) {
	protocol.SpuriousPauses = cfg.SpuriousTracePauses
	protocol.OwnershipTimeout = cfg.PeerStartTimeout
}
