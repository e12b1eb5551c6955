// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package instancelock keeps a second switchboard daemon from starting
// while one is already running for the same user. Two daemons would
// fight over the browser bus name and each believe it owns it.
//
// The lock is an flock(2) on a file in the state directory, held for as
// long as the file descriptor stays open. The file also carries the
// holder's PID for diagnostics; the PID is never trusted for locking,
// so a crashed holder never leaves a stale lock behind.
package instancelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// FileName is the lock file's name inside the state directory.
const FileName = "browser-switchboard.lock"

// ErrHeld is returned by Acquire when another process holds the lock.
var ErrHeld = errors.New("another browser-switchboard instance is running")

// Lock is a held instance lock.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock in directory without blocking. When another
// process holds it, the error wraps ErrHeld and names that process.
func Acquire(directory string) (*Lock, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	path := filepath.Join(directory, FileName)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid, readErr := Holder(directory); readErr == nil {
				return nil, fmt.Errorf("%w (pid %d)", ErrHeld, pid)
			}
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if err := writePID(file); err != nil {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &Lock{path: path, file: file}, nil
}

func writePID(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return err
	}
	return file.Sync()
}

// Holder returns the PID recorded in the lock file in directory.
func Holder(directory string) (int, error) {
	data, err := os.ReadFile(filepath.Join(directory, FileName))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("lock file holds %q: %w", data, err)
	}
	return pid, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. The file is left in place; removing it would
// let a racing Acquire lock an unlinked inode. Release is safe to call
// more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
