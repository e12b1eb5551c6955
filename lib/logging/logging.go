// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the switchboard's structured logger for the
// configured log target.
//
// The "stdout" target writes to standard output, or to Options.Stream
// when one is given: text when the stream is a terminal, JSON
// otherwise. "syslog" sends JSON records
// to the local syslog daemon under the browser-switchboard tag, and
// "none" discards everything. An unrecognized target falls back to
// "stdout" and says so in the first record.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"

	"golang.org/x/term"
)

// SyslogTag identifies switchboard records in syslog.
const SyslogTag = "browser-switchboard"

// Options controls logger construction.
type Options struct {
	// Target is one of "stdout", "syslog", or "none".
	Target string

	// Level is the minimum record level.
	Level slog.Level

	// Stream is where "stdout" records go. Nil means os.Stdout.
	Stream *os.File
}

// Logger is a structured logger and whatever must be closed with it.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// Close releases the log target. Safe on a nil closer.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// New returns a logger for options.Target. It fails only when the
// syslog daemon cannot be reached.
func New(options Options) (*Logger, error) {
	handlerOptions := &slog.HandlerOptions{Level: options.Level}
	switch options.Target {
	case "none":
		return &Logger{Logger: slog.New(slog.DiscardHandler)}, nil

	case "syslog":
		writer, err := syslog.New(syslog.LOG_INFO|syslog.LOG_USER, SyslogTag)
		if err != nil {
			return nil, fmt.Errorf("connecting to syslog: %w", err)
		}
		return &Logger{Logger: slog.New(slog.NewJSONHandler(writer, handlerOptions)), closer: writer}, nil

	default:
		stream := options.Stream
		if stream == nil {
			stream = os.Stdout
		}
		logger := slog.New(StreamHandler(stream, handlerOptions))
		if options.Target != "" && options.Target != "stdout" {
			logger.Warn("unknown logging target, using stdout", "logging", options.Target)
		}
		return &Logger{Logger: logger}, nil
	}
}

// StreamHandler returns a text handler when stream is a terminal and a
// JSON handler otherwise.
func StreamHandler(stream *os.File, options *slog.HandlerOptions) slog.Handler {
	if term.IsTerminal(int(stream.Fd())) {
		return slog.NewTextHandler(stream, options)
	}
	return slog.NewJSONHandler(stream, options)
}
