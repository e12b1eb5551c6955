// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/bureau-foundation/switchboard/lib/dispatch"
	"github.com/bureau-foundation/switchboard/lib/handoff"
	"github.com/bureau-foundation/switchboard/lib/launch"
	"github.com/bureau-foundation/switchboard/lib/oscbrowser"
)

type requestDispatcher interface {
	Dispatch(ctx context.Context, request dispatch.Request) error
	Reload(settings dispatch.Settings)
}

// daemon is the main loop. Requests and signals arrive on channels and
// are handled one at a time on the loop's goroutine.
type daemon struct {
	dispatcher requestDispatcher
	calls      <-chan oscbrowser.Call
	signals    <-chan os.Signal
	reap       func() []launch.Exited
	reload     func() dispatch.Settings
	continuous bool
	logger     *slog.Logger
}

// loop runs until ctx is cancelled, a one-shot request is done, or a
// fatal handoff error occurs. Only the fatal error is returned.
func (d *daemon) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down")
			return nil

		case received := <-d.signals:
			if !d.handleSignal(received) {
				return nil
			}

		case call := <-d.calls:
			if err := d.handleCall(ctx, call); err != nil {
				return err
			}
			if !d.continuous {
				d.logger.Info("request handled, exiting")
				return nil
			}
		}
	}
}

// handleSignal reports whether the loop should keep running.
func (d *daemon) handleSignal(received os.Signal) bool {
	switch received {
	case syscall.SIGCHLD:
		for _, exited := range d.reap() {
			d.logger.Debug("browser exited", "pid", exited.PID, "exit_status", exited.Status.ExitStatus())
		}
	case syscall.SIGHUP:
		if !d.continuous {
			// The next activation reads the new configuration.
			d.logger.Info("configuration changed, exiting")
			return false
		}
		d.logger.Info("reloading configuration")
		d.dispatcher.Reload(d.reload())
	}
	return true
}

func (d *daemon) handleCall(ctx context.Context, call oscbrowser.Call) error {
	logger := d.logger.With("method", call.Method)
	err := d.dispatcher.Dispatch(ctx, call.Request)
	switch {
	case err == nil:
		return nil
	case handoff.IsFatal(err):
		return fmt.Errorf("%s: %w", call.Method, err)
	case ctx.Err() != nil:
		logger.Info("request abandoned at shutdown", "error", err)
		return nil
	default:
		logger.Warn("request failed", "error", err)
		return nil
	}
}
