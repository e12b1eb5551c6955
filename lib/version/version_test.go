// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	defer func() { GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime }()

	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-10-17T08:00:00Z"
	if got, want := Info(), Version+" (abc1234-dirty, 2026-10-17T08:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "false"
	if got := Info(); strings.Contains(got, "dirty") {
		t.Errorf("clean build reported dirty: %q", got)
	}
}

func TestLine(t *testing.T) {
	line := Line("swb-open")
	if !strings.HasPrefix(line, "swb-open "+Version) {
		t.Errorf("Line = %q", line)
	}
}
