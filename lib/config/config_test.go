// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, home, name, content string) string {
	t.Helper()
	directory := filepath.Join(home, ".config")
	if err := os.MkdirAll(directory, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/29999")
	cfg := Default()

	if cfg.ContinuousMode {
		t.Error("expected continuous_mode=false")
	}
	if cfg.DefaultBrowser != "microb" {
		t.Errorf("expected default_browser=microb, got %q", cfg.DefaultBrowser)
	}
	if cfg.Logging != LogStdout {
		t.Errorf("expected logging=stdout, got %q", cfg.Logging)
	}
	if cfg.AutostartMicrob != AutostartAuto {
		t.Errorf("expected autostart_microb=-1, got %d", cfg.AutostartMicrob)
	}
	if cfg.SpuriousTracePauses != 1 {
		t.Errorf("expected spurious_trace_pauses=1, got %d", cfg.SpuriousTracePauses)
	}
	if cfg.StateDir != "/run/user/29999" {
		t.Errorf("expected state_dir from XDG_RUNTIME_DIR, got %q", cfg.StateDir)
	}
}

func TestHome(t *testing.T) {
	t.Setenv("HOME", "")
	if got := Home(); got != DefaultHome {
		t.Errorf("Home() with HOME unset = %q, want %q", got, DefaultHome)
	}
	t.Setenv("HOME", "/home/tester")
	if got := Home(); got != "/home/tester" {
		t.Errorf("Home() = %q, want /home/tester", got)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load with no file: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("expected empty Path, got %q", cfg.Path)
	}
	if cfg.DefaultBrowser != "microb" {
		t.Errorf("expected defaults, got default_browser=%q", cfg.DefaultBrowser)
	}
}

func TestLoad_YAML(t *testing.T) {
	home := t.TempDir()
	path := writeConfig(t, home, FileName, `
continuous_mode: true
default_browser: other
other_browser_cmd: "exec browser --url=%s"
logging: syslog
autostart_microb: 0
spurious_trace_pauses: 2
peer_start_timeout: 30s
state_dir: /var/run/switchboard
`)

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
	if !cfg.ContinuousMode {
		t.Error("expected continuous_mode=true")
	}
	if cfg.DefaultBrowser != "other" {
		t.Errorf("default_browser = %q", cfg.DefaultBrowser)
	}
	if cfg.OtherBrowserCmd != "exec browser --url=%s" {
		t.Errorf("other_browser_cmd = %q", cfg.OtherBrowserCmd)
	}
	if cfg.Logging != LogSyslog {
		t.Errorf("logging = %q", cfg.Logging)
	}
	if cfg.AutostartMicrob != AutostartNever {
		t.Errorf("autostart_microb = %d", cfg.AutostartMicrob)
	}
	if cfg.SpuriousTracePauses != 2 {
		t.Errorf("spurious_trace_pauses = %d", cfg.SpuriousTracePauses)
	}
	if cfg.PeerStartTimeout != 30*time.Second {
		t.Errorf("peer_start_timeout = %s", cfg.PeerStartTimeout)
	}
	if cfg.StateDir != "/var/run/switchboard" {
		t.Errorf("state_dir = %q", cfg.StateDir)
	}
}

func TestLoad_YAMLIntegerFlag(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, FileName, "continuous_mode: 1\n")

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.ContinuousMode {
		t.Error("expected continuous_mode: 1 to enable continuous mode")
	}
}

func TestLoad_YAMLMalformed(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, FileName, "continuous_mode: [nope\n")

	cfg, err := Load(home)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.Contains(err.Error(), FileName) {
		t.Errorf("error should name the file, got %v", err)
	}
	if cfg == nil || cfg.DefaultBrowser != "microb" {
		t.Error("expected defaults alongside the error")
	}
}

func TestLoad_YAMLTakesPrecedence(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, FileName, "default_browser: tear\n")
	writeConfig(t, home, LegacyFileName, "default_browser = fennec\n")

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultBrowser != "tear" {
		t.Errorf("default_browser = %q, want tear from the YAML file", cfg.DefaultBrowser)
	}
}

func TestLoad_Legacy(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, LegacyFileName, `# Browser Switchboard
continuous_mode = 1
default_browser = "opera"
default_browser = midori
other_browser_cmd = "xterm -e 'lynx %s'"
logging=none
autostart_microb = 1
no equals sign here
unknown_key = whatever
`)

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.ContinuousMode {
		t.Error("expected continuous_mode=1")
	}
	if cfg.DefaultBrowser != "opera" {
		t.Errorf("default_browser = %q, want the first occurrence (opera)", cfg.DefaultBrowser)
	}
	if cfg.OtherBrowserCmd != "xterm -e 'lynx %s'" {
		t.Errorf("other_browser_cmd = %q", cfg.OtherBrowserCmd)
	}
	if cfg.Logging != LogNone {
		t.Errorf("logging = %q", cfg.Logging)
	}
	if cfg.AutostartMicrob != AutostartAlways {
		t.Errorf("autostart_microb = %d", cfg.AutostartMicrob)
	}
}

func TestLoad_OldName(t *testing.T) {
	home := t.TempDir()
	path := writeConfig(t, home, OldFileName, "default_browser = fennec\n")

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != path || cfg.DefaultBrowser != "fennec" {
		t.Errorf("got path=%q default_browser=%q", cfg.Path, cfg.DefaultBrowser)
	}
}

func TestLoad_LegacyNormalizes(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, LegacyFileName, `default_browser =
logging = ""
spurious_trace_pauses = -4
peer_start_timeout = 15
`)

	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultBrowser != "microb" {
		t.Errorf("empty default_browser should fall back to microb, got %q", cfg.DefaultBrowser)
	}
	if cfg.Logging != LogStdout {
		t.Errorf("empty logging should fall back to stdout, got %q", cfg.Logging)
	}
	if cfg.SpuriousTracePauses != 0 {
		t.Errorf("negative spurious_trace_pauses should clamp to 0, got %d", cfg.SpuriousTracePauses)
	}
	if cfg.PeerStartTimeout != 15*time.Second {
		t.Errorf("bare integer peer_start_timeout should be seconds, got %s", cfg.PeerStartTimeout)
	}
}

func TestParseLegacyLine(t *testing.T) {
	tests := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{"key = value", "key", "value", true},
		{"  key=value  ", "key", "value", true},
		{`key = "quoted value"`, "key", "quoted value", true},
		{`key = "unterminated`, "key", `"unterminated`, true},
		{"key = a = b", "key", "a = b", true},
		{"# comment = 1", "", "", false},
		{"", "", "", false},
		{"no separator", "", "", false},
		{" = value", "", "", false},
	}
	for _, test := range tests {
		key, value, ok := parseLegacyLine(test.line)
		if key != test.key || value != test.value || ok != test.ok {
			t.Errorf("parseLegacyLine(%q) = %q, %q, %v; want %q, %q, %v",
				test.line, key, value, ok, test.key, test.value, test.ok)
		}
	}
}

func TestAtoi(t *testing.T) {
	tests := map[string]int{
		"1":   1,
		"-1":  -1,
		"42x": 42,
		"x42": 0,
		"":    0,
		"+7":  7,
	}
	for input, want := range tests {
		if got := atoi(input); got != want {
			t.Errorf("atoi(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestPersistentPeer(t *testing.T) {
	tests := []struct {
		autostart int
		browser   string
		want      bool
	}{
		{AutostartAlways, "opera", true},
		{AutostartAlways, "microb", true},
		{AutostartNever, "microb", false},
		{AutostartAuto, "microb", true},
		{AutostartAuto, "tear", false},
	}
	for _, test := range tests {
		cfg := &Config{AutostartMicrob: test.autostart, DefaultBrowser: test.browser}
		if got := cfg.PersistentPeer(); got != test.want {
			t.Errorf("autostart=%d browser=%s: PersistentPeer() = %v, want %v",
				test.autostart, test.browser, got, test.want)
		}
	}
}
