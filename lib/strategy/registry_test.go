// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestRegistry(installed map[string]bool, logs *bytes.Buffer) *Registry {
	logger := slog.New(slog.NewTextHandler(logs, nil))
	return NewRegistry(KnownBrowsers("/home/user"), func(path string) bool {
		return installed[path]
	}, logger)
}

func TestResolve(t *testing.T) {
	installed := map[string]bool{
		"/usr/bin/tear":   true,
		"/usr/bin/fennec": true,
		"/usr/bin/midori": true,
	}

	tests := []struct {
		name     string
		id       string
		template string
		want     Strategy
		warns    bool
	}{
		{name: "absent", id: "", want: nil},
		{name: "default by name", id: "microb", want: nil},
		{
			name: "fixed binary installed",
			id:   "tear",
			want: FixedBinary{
				ID: "tear", Path: "/usr/bin/tear", ProcessName: "tear",
				Remote:            KnownBrowsers("/home/user")[1].Strategy.(FixedBinary).Remote,
				NewWindowArgument: "new_window",
			},
		},
		{name: "template installed", id: "fennec", want: ShellTemplate{ID: "fennec", Pattern: "fennec %s"}},
		{name: "midori", id: "midori", want: ShellTemplate{ID: "midori", Pattern: "midori %s"}},
		{name: "not installed", id: "opera", want: nil, warns: true},
		{name: "custom with template", id: "other", template: "other-browser %s", want: ShellTemplate{ID: "other", Pattern: "other-browser %s"}},
		{name: "custom without template", id: "other", want: nil, warns: true},
		{name: "unknown", id: "netscape", want: nil, warns: true},
		{name: "template ignored for known browser", id: "fennec", template: "ignored %s", want: ShellTemplate{ID: "fennec", Pattern: "fennec %s"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var logs bytes.Buffer
			registry := newTestRegistry(installed, &logs)

			want := test.want
			if want == nil {
				want = registry.Default()
			}
			got := registry.Resolve(test.id, test.template)
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Resolve(%q, %q) = %#v, want %#v", test.id, test.template, got, want)
			}
			if warned := strings.Contains(logs.String(), "level=WARN"); warned != test.warns {
				t.Errorf("warned = %v, want %v (logs: %s)", warned, test.warns, logs.String())
			}
		})
	}
}

func TestResolveIsTotal(t *testing.T) {
	var logs bytes.Buffer
	registry := newTestRegistry(nil, &logs)
	identifiers := []string{"", "microb", "tear", "fennec", "opera", "midori", "other", "x", "MICROB", " microb", "%s"}
	for _, id := range identifiers {
		for _, template := range []string{"", "cmd %s"} {
			got := registry.Resolve(id, template)
			if got == nil {
				t.Fatalf("Resolve(%q, %q) returned nil", id, template)
			}
			switch got.(type) {
			case FixedBinary, IdentityHandoff, ShellTemplate:
			default:
				t.Fatalf("Resolve(%q, %q) returned unexpected %T", id, template, got)
			}
		}
	}
}

func TestDefaultIsIdentityHandoff(t *testing.T) {
	registry := NewRegistry(KnownBrowsers("/home/tester"), nil, nil)
	handoff, ok := registry.Default().(IdentityHandoff)
	if !ok {
		t.Fatalf("default strategy is %T, want IdentityHandoff", registry.Default())
	}
	if handoff.SessionDir != "/home/tester/.mozilla/microb" {
		t.Errorf("SessionDir = %q", handoff.SessionDir)
	}
	if handoff.Identity != Identity {
		t.Errorf("Identity = %q, want %q", handoff.Identity, Identity)
	}
}

func TestNewRegistryRequiresDefault(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewRegistry without a default strategy did not panic")
		}
	}()
	NewRegistry([]Browser{{ID: Custom}}, nil, nil)
}

func TestExecutableExists(t *testing.T) {
	directory := t.TempDir()
	executable := filepath.Join(directory, "browser")
	plain := filepath.Join(directory, "notes")
	if err := os.WriteFile(executable, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(plain, []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}

	if !executableExists(executable) {
		t.Error("executableExists(executable) = false")
	}
	if executableExists(plain) {
		t.Error("executableExists(non-executable) = true")
	}
	if executableExists(directory) {
		t.Error("executableExists(directory) = true")
	}
	if executableExists(filepath.Join(directory, "absent")) {
		t.Error("executableExists(absent) = true")
	}
}

func TestHandoff(t *testing.T) {
	registry := newTestRegistry(nil, &bytes.Buffer{})
	handoff, ok := registry.Handoff()
	if !ok {
		t.Fatal("known browsers have no identity-handoff entry")
	}
	if handoff.ID != Microb || handoff.Identity != Identity {
		t.Errorf("Handoff() = %+v", handoff)
	}

	shellOnly := NewRegistry([]Browser{
		{ID: "fennec", Strategy: ShellTemplate{ID: "fennec", Pattern: "fennec %s"}},
	}, nil, nil)
	if _, ok := shellOnly.Handoff(); ok {
		t.Error("Handoff() found a strategy in a table without one")
	}
}
