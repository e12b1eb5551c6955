// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package launch starts browser processes on behalf of the switchboard.
//
// How a child is started depends on the operating mode. In one-shot
// mode the switchboard handles a single request and exits, so the
// launcher runs the child and waits for it. In persistent mode the
// switchboard keeps serving requests, so a child is started in its own
// session with stdio on /dev/null, released, and left to run; the main
// loop later calls Reap when SIGCHLD arrives so finished children never
// linger as zombies.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Mode selects how launched children relate to the switchboard.
type Mode int

const (
	// OneShot runs each child to completion before returning.
	OneShot Mode = iota

	// Persistent detaches each child and returns immediately.
	Persistent
)

func (m Mode) String() string {
	switch m {
	case OneShot:
		return "one-shot"
	case Persistent:
		return "persistent"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// DefaultShell interprets command lines passed to Shell.
const DefaultShell = "/bin/sh"

// Launcher starts child processes. The zero value launches in OneShot
// mode with a discarding logger.
type Launcher struct {
	Mode   Mode
	Logger *slog.Logger

	// ShellPath overrides DefaultShell.
	ShellPath string
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.Logger
}

// Binary runs the executable at path with args. In OneShot mode it
// waits for the child and returns its failure, if any; in Persistent
// mode it returns once the child has started.
func (l *Launcher) Binary(ctx context.Context, path string, args ...string) error {
	if l.Mode == Persistent {
		_, err := l.Start(append([]string{path}, args...))
		return err
	}

	cmd := exec.CommandContext(ctx, path, args...)
	l.logger().Info("running browser", "path", path, "args", args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", path, err)
	}
	return nil
}

// Shell runs commandLine through the system shell with the same mode
// rules as Binary. The command line must already be safely quoted.
func (l *Launcher) Shell(ctx context.Context, commandLine string) error {
	shell := l.ShellPath
	if shell == "" {
		shell = DefaultShell
	}
	return l.Binary(ctx, shell, "-c", commandLine)
}

// Start launches argv detached from the switchboard regardless of Mode
// and returns the child's PID. The child gets a new session, so it
// survives the switchboard exiting and receives no terminal signals
// meant for it. The caller never waits on the child; Reap collects it.
func (l *Launcher) Start(argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("launch: empty argv")
	}

	// Stdin, Stdout, and Stderr left nil are connected to /dev/null.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	pid := cmd.Process.Pid

	// Release drops the os.Process handle without waiting, leaving the
	// exit status for Reap.
	if err := cmd.Process.Release(); err != nil {
		l.logger().Warn("releasing child process handle", "pid", pid, "error", err)
	}
	l.logger().Info("started detached process", "argv", argv, "pid", pid)
	return pid, nil
}

// Exited describes one child collected by Reap.
type Exited struct {
	PID    int
	Status unix.WaitStatus
}

// Reap collects every child that has already finished and returns
// them. It never blocks. Call it from the main loop on SIGCHLD; several
// exits can coalesce into one signal, so it drains until no finished
// child remains.
func (l *Launcher) Reap() []Exited {
	var reaped []Exited
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			// ECHILD: no children at all. pid 0: children remain but
			// none has finished.
			return reaped
		}
		reaped = append(reaped, Exited{PID: pid, Status: status})
		l.logger().Debug("reaped child", "pid", pid, "exit_status", status.ExitStatus())
	}
}
