// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fswatch reports files appearing in a directory.
//
// A Watch is installed before whatever might create the file is
// started. Creation events queue in the kernel until Next consumes
// them, so an event that fires before anyone calls Next is not lost;
// events are consumed in the order they happened.
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("fswatch: watch closed")

// Watch delivers creation events for one directory.
type Watch struct {
	directory string
	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	closeErr  error
}

// WatchDir starts watching directory for entries being created or
// moved into it. The directory is created (mode 0700) if it does not
// exist yet: the peer may not have run before, and a watch cannot be
// placed on a missing directory.
func WatchDir(directory string) (*Watch, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("creating watched directory %s: %w", directory, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(directory); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", directory, err)
	}
	return &Watch{directory: directory, watcher: watcher}, nil
}

// Directory returns the watched directory.
func (w *Watch) Directory() string { return w.directory }

// Next blocks until an entry called name is created in the directory
// and returns its full path. Events for other names are consumed and
// dropped. fsnotify reports a rename into the directory as Create, so
// an atomically replaced file counts as created.
func (w *Watch) Next(ctx context.Context, name string) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return "", ErrClosed
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			return event.Name, nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return "", ErrClosed
			}
			return "", fmt.Errorf("watching %s: %w", w.directory, err)
		}
	}
}

// Close removes the watch. It is safe to call more than once.
func (w *Watch) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.watcher.Close()
	})
	return w.closeErr
}
