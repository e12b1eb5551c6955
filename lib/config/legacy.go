// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bufio"
	"bytes"
	"strings"
)

// applyLegacy applies "key = value" lines from data. Malformed lines
// and unknown keys are skipped; only the first assignment of each key
// counts.
func (c *Config) applyLegacy(data []byte) error {
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := parseLegacyLine(scanner.Text())
		if !ok || seen[key] {
			continue
		}
		if c.setLegacy(key, value) {
			seen[key] = true
		}
	}
	return scanner.Err()
}

// parseLegacyLine splits one line into key and value. Comments, blank
// lines, and lines without "=" yield ok=false.
func parseLegacyLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	return key, value, true
}
