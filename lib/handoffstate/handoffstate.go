// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package handoffstate records an identity handoff that is in flight.
//
// While the switchboard has given its bus identity to a peer browser it
// is exposed: if it dies before reclaiming the identity, the next
// switchboard instance starts with a peer it knows nothing about. The
// protocol therefore writes a Record before releasing the identity and
// clears it after reclaiming. On startup the daemon checks for a recent
// Record and, when the previous instance spawned a transient peer,
// terminates that orphan before claiming the identity.
//
// The file is written atomically (temporary file, fsync, rename, fsync
// of the directory), so a reader sees either the old record, the new
// record, or nothing.
package handoffstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/switchboard/lib/codec"
)

// FileName is the record's name inside the state directory.
const FileName = "handoff.cbor"

// Record describes one in-flight handoff.
type Record struct {
	// Browser is the identifier of the peer browser.
	Browser string `cbor:"browser"`

	// PeerProcess is the process name used to find the peer.
	PeerProcess string `cbor:"peer_process"`

	// Spawned is true when the switchboard started the peer itself
	// rather than finding it already running.
	Spawned bool `cbor:"spawned"`

	// Transient is true when the peer is terminated at session end.
	Transient bool `cbor:"transient"`

	// SwitchboardPID is the PID of the daemon that wrote the record.
	SwitchboardPID int `cbor:"switchboard_pid"`

	// Started is when the handoff began.
	Started time.Time `cbor:"started"`
}

// DecodeError reports a record file that exists but does not decode.
// Data holds the raw file contents for diagnostics.
type DecodeError struct {
	Path string
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding handoff record %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Path returns the record path inside directory.
func Path(directory string) string {
	return filepath.Join(directory, FileName)
}

// Write atomically replaces the record at path. The file is created
// with mode 0600; the parent directory must exist.
func Write(path string, record Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding handoff record: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporaryPath, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming handoff record into place: %w", err)
	}

	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}

// Read decodes the record at path. A missing file yields an error
// matching os.ErrNotExist; undecodable contents yield a *DecodeError.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return Record{}, &DecodeError{Path: path, Data: data, Err: err}
	}
	return record, nil
}

// Check returns the record at path if it exists and was started no
// more than maxAge before now. A missing or stale record returns false
// with no error; a stale record is removed. Any other failure is
// returned so the caller can tell "nothing in flight" from "record
// unreadable".
func Check(path string, maxAge time.Duration, now time.Time) (Record, bool, error) {
	record, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	if now.Sub(record.Started) > maxAge {
		return Record{}, false, Clear(path)
	}
	return record, true, nil
}

// Clear removes the record. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing handoff record: %w", err)
	}
	return nil
}
