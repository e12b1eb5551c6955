// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// readLines closes file and returns its non-empty lines.
func readLines(t *testing.T, file *os.File) []string {
	t.Helper()
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(file.Name())
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func createStream(t *testing.T) *os.File {
	t.Helper()
	file, err := os.Create(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatal(err)
	}
	return file
}

func TestStdoutToFileIsJSON(t *testing.T) {
	stream := createStream(t)
	logger, err := New(Options{Target: "stdout", Stream: stream})
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	logger.Info("launching browser", "browser", "tear")

	lines := readLines(t, stream)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), lines)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not JSON: %v (%q)", err, lines[0])
	}
	if record["msg"] != "launching browser" || record["browser"] != "tear" {
		t.Errorf("unexpected record %v", record)
	}
}

func TestLevelFilters(t *testing.T) {
	stream := createStream(t)
	logger, err := New(Options{Target: "stdout", Stream: stream, Level: slog.LevelWarn})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept")

	lines := readLines(t, stream)
	if len(lines) != 1 || !strings.Contains(lines[0], "kept") {
		t.Errorf("lines = %q, want only the warning", lines)
	}
}

func TestUnknownTargetFallsBackToStdout(t *testing.T) {
	stream := createStream(t)
	logger, err := New(Options{Target: "carrier-pigeon", Stream: stream})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("after fallback")

	lines := readLines(t, stream)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want warning plus record: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "carrier-pigeon") {
		t.Errorf("first record should name the bad target: %q", lines[0])
	}
}

func TestNoneDiscards(t *testing.T) {
	logger, err := New(Options{Target: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if logger.Enabled(t.Context(), slog.LevelError) {
		t.Error("none target should not enable any level")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStdoutTargetDefaultsToStandardOutput(t *testing.T) {
	stream := createStream(t)
	saved := os.Stdout
	os.Stdout = stream
	t.Cleanup(func() { os.Stdout = saved })

	logger, err := New(Options{Target: "stdout"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to standard output")

	lines := readLines(t, stream)
	if len(lines) != 1 || !strings.Contains(lines[0], "to standard output") {
		t.Errorf("standard output got %q, want the record", lines)
	}
}
