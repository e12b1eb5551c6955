// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proctable answers process-table questions the switchboard
// needs: is a process with this name running, is this PID still alive,
// and how to shut a process down politely before forcing it.
//
// Lookups read /proc directly. A Table carries the /proc root so tests
// can point it at a fabricated tree under t.TempDir.
package proctable

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/switchboard/lib/clock"
)

// DefaultRoot is the procfs mount point.
const DefaultRoot = "/proc"

// Table reads process information from a procfs tree.
type Table struct {
	// Root is the procfs mount point. Empty means DefaultRoot.
	Root string

	// Clock times the grace period in Terminate. Nil means the real
	// clock.
	Clock clock.Clock

	// signal delivers a signal to a PID. Nil means unix.Kill. Tests
	// replace it to observe Terminate without touching real processes.
	signal func(pid int, signal unix.Signal) error
}

func (t *Table) root() string {
	if t.Root == "" {
		return DefaultRoot
	}
	return t.Root
}

func (t *Table) clock() clock.Clock {
	if t.Clock == nil {
		return clock.Real()
	}
	return t.Clock
}

func (t *Table) kill(pid int, signal unix.Signal) error {
	if t.signal != nil {
		return t.signal(pid, signal)
	}
	return unix.Kill(pid, signal)
}

// Find returns the PIDs of every live process whose name matches. A
// process matches when its kernel command name (comm) or the base name
// of its argv[0] equals name. Zombies never match. The result is in
// ascending PID order and is empty, not an error, when nothing matches.
func (t *Table) Find(name string) ([]int, error) {
	entries, err := os.ReadDir(t.root())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", t.root(), err)
	}

	var matches []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		if !t.matches(pid, name) {
			continue
		}
		if state, err := t.state(pid); err != nil || state == 'Z' {
			continue
		}
		matches = append(matches, pid)
	}
	slices.Sort(matches)
	return matches, nil
}

// Running reports whether any live process matches name. Lookup errors
// count as "not running": the caller's fallback is always to start a
// fresh process.
func (t *Table) Running(name string) bool {
	pids, err := t.Find(name)
	return err == nil && len(pids) > 0
}

func (t *Table) matches(pid int, name string) bool {
	directory := filepath.Join(t.root(), strconv.Itoa(pid))

	if comm, err := os.ReadFile(filepath.Join(directory, "comm")); err == nil {
		if string(bytes.TrimRight(comm, "\n")) == name {
			return true
		}
	}

	cmdline, err := os.ReadFile(filepath.Join(directory, "cmdline"))
	if err != nil || len(cmdline) == 0 {
		return false
	}
	argv0, _, _ := bytes.Cut(cmdline, []byte{0})
	return filepath.Base(string(argv0)) == name
}

// state returns the single-letter process state from /proc/PID/stat.
// The command name field is parenthesized and may itself contain spaces
// or parentheses, so the state is located after the last ')'.
func (t *Table) state(pid int) (byte, error) {
	data, err := os.ReadFile(filepath.Join(t.root(), strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, err
	}
	closing := bytes.LastIndexByte(data, ')')
	if closing < 0 || closing+2 >= len(data) {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	return data[closing+2], nil
}

// Alive reports whether pid names an existing process that has not
// yet exited. A zombie (exited, not yet reaped) is not alive.
func (t *Table) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	state, err := t.state(pid)
	if err != nil {
		return false
	}
	return state != 'Z' && state != 'X'
}

// Terminate sends SIGTERM to pid, waits up to grace for it to exit,
// then sends SIGKILL if it is still alive. A process that is already
// gone is not an error.
func (t *Table) Terminate(pid int, grace time.Duration) error {
	if err := t.kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("sending SIGTERM to %d: %w", pid, err)
	}

	const pollInterval = 50 * time.Millisecond
	deadline := t.clock().Now().Add(grace)
	for t.Alive(pid) {
		if !t.clock().Now().Before(deadline) {
			if err := t.kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				return fmt.Errorf("sending SIGKILL to %d: %w", pid, err)
			}
			return nil
		}
		t.clock().Sleep(pollInterval)
	}
	return nil
}

// TerminateAll terminates every process matching name and returns the
// PIDs it signalled. Errors for individual PIDs are joined.
func (t *Table) TerminateAll(name string, grace time.Duration) ([]int, error) {
	pids, err := t.Find(name)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, pid := range pids {
		if err := t.Terminate(pid, grace); err != nil {
			errs = append(errs, err)
		}
	}
	return pids, errors.Join(errs...)
}
