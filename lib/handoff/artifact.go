// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handoff

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ArtifactPID extracts the engine PID from a session artifact. The
// engine's lock is a symlink whose target reads "host:+PID"; a regular
// file with the same text is accepted too.
func ArtifactPID(path string) (int, error) {
	text, err := os.Readlink(path)
	if err != nil {
		var pathError *os.PathError
		if !errors.As(err, &pathError) {
			return 0, err
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return 0, fmt.Errorf("reading session artifact: %w", readErr)
		}
		text = string(data)
	}
	return parseLockTarget(text)
}

func parseLockTarget(text string) (int, error) {
	text = strings.TrimSpace(text)
	plus := strings.LastIndexByte(text, '+')
	if plus < 0 {
		return 0, fmt.Errorf("session artifact %q has no +PID", text)
	}
	pid, err := strconv.Atoi(text[plus+1:])
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("session artifact %q has no valid PID", text)
	}
	return pid, nil
}
