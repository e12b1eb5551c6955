// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultHome is used when $HOME is unset.
const DefaultHome = "/home/user"

// File names under $HOME/.config, in lookup order.
const (
	FileName       = "browser-switchboard.yaml"
	LegacyFileName = "browser-switchboard"
	OldFileName    = "browser-proxy"
)

// Logging targets.
const (
	LogStdout = "stdout"
	LogSyslog = "syslog"
	LogNone   = "none"
)

// Autostart values for Config.AutostartMicrob.
const (
	AutostartNever  = 0
	AutostartAlways = 1
	AutostartAuto   = -1
)

// Config is the switchboard configuration.
type Config struct {
	// ContinuousMode keeps the daemon running after the first request.
	// Default: false (exit after one request)
	ContinuousMode Flag `yaml:"continuous_mode"`

	// DefaultBrowser is the identifier of the browser that handles
	// requests.
	// Default: microb
	DefaultBrowser string `yaml:"default_browser"`

	// OtherBrowserCmd is the command template used when DefaultBrowser
	// is "other". The first %s is replaced with the quoted address.
	OtherBrowserCmd string `yaml:"other_browser_cmd"`

	// Logging is the log target: stdout, syslog, or none.
	// Default: stdout
	Logging string `yaml:"logging"`

	// AutostartMicrob controls whether the stock browser is kept
	// running between requests: 1 always, 0 never, -1 only while it is
	// the default browser.
	// Default: -1
	AutostartMicrob int `yaml:"autostart_microb"`

	// SpuriousTracePauses is how many SIGSTOP stops at the start of an
	// engine trace are swallowed.
	// Default: 1
	SpuriousTracePauses int `yaml:"spurious_trace_pauses"`

	// PeerStartTimeout bounds the wait for the stock browser to claim
	// the bus name. Zero waits forever.
	// Default: 0
	PeerStartTimeout time.Duration `yaml:"peer_start_timeout"`

	// StateDir holds the instance lock and the in-flight handoff
	// record.
	// Default: $XDG_RUNTIME_DIR, or /tmp
	StateDir string `yaml:"state_dir"`

	// Path is the file the configuration was read from, empty when
	// every value is a default.
	Path string `yaml:"-"`
}

// Flag is a boolean that also accepts the integers the legacy format
// uses: zero is false, anything else is true.
type Flag bool

// UnmarshalYAML accepts a YAML boolean or integer.
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		*f = Flag(b)
		return nil
	}
	var n int
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("line %d: %q is neither a boolean nor an integer", node.Line, node.Value)
	}
	*f = n != 0
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	stateDir := os.Getenv("XDG_RUNTIME_DIR")
	if stateDir == "" {
		stateDir = os.TempDir()
	}
	return &Config{
		DefaultBrowser:      "microb",
		Logging:             LogStdout,
		AutostartMicrob:     AutostartAuto,
		SpuriousTracePauses: 1,
		StateDir:            stateDir,
	}
}

// Home returns $HOME, or DefaultHome when it is unset.
func Home() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	return DefaultHome
}

// Paths returns the candidate configuration files under home, in
// lookup order.
func Paths(home string) []string {
	directory := filepath.Join(home, ".config")
	return []string{
		filepath.Join(directory, FileName),
		filepath.Join(directory, LegacyFileName),
		filepath.Join(directory, OldFileName),
	}
}

// Load reads the first configuration file that exists under home. With
// no file at all it returns Default() and no error. On a read or parse
// error it returns Default() together with the error, so the caller
// can log and carry on.
func Load(home string) (*Config, error) {
	for _, path := range Paths(home) {
		cfg, err := LoadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Default(), err
		}
		return cfg, nil
	}
	return Default(), nil
}

// LoadFile reads the configuration at path. Files ending in ".yaml" or
// ".yml" are YAML; anything else is the legacy line format.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := cfg.applyLegacy(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	cfg.Path = path
	cfg.normalize()
	return cfg, nil
}

// normalize replaces values that cannot be used with defaults.
func (c *Config) normalize() {
	defaults := Default()
	if c.DefaultBrowser == "" {
		c.DefaultBrowser = defaults.DefaultBrowser
	}
	if c.Logging == "" {
		c.Logging = defaults.Logging
	}
	if c.SpuriousTracePauses < 0 {
		c.SpuriousTracePauses = 0
	}
	if c.PeerStartTimeout < 0 {
		c.PeerStartTimeout = 0
	}
	if c.StateDir == "" {
		c.StateDir = defaults.StateDir
	}
}

// PersistentPeer reports whether the stock browser should be kept
// running rather than torn down after each session.
func (c *Config) PersistentPeer() bool {
	switch c.AutostartMicrob {
	case AutostartAlways:
		return true
	case AutostartNever:
		return false
	default:
		return c.DefaultBrowser == "microb"
	}
}

// setLegacy assigns one legacy key. Integers parse like atoi: leading
// digits only, zero when there are none.
func (c *Config) setLegacy(key, value string) bool {
	switch key {
	case "continuous_mode":
		c.ContinuousMode = atoi(value) != 0
	case "default_browser":
		c.DefaultBrowser = value
	case "other_browser_cmd":
		c.OtherBrowserCmd = value
	case "logging":
		c.Logging = value
	case "autostart_microb":
		c.AutostartMicrob = atoi(value)
	case "spurious_trace_pauses":
		c.SpuriousTracePauses = atoi(value)
	case "peer_start_timeout":
		timeout, err := time.ParseDuration(value)
		if err != nil {
			timeout = time.Duration(atoi(value)) * time.Second
		}
		c.PeerStartTimeout = timeout
	case "state_dir":
		c.StateDir = value
	default:
		return false
	}
	return true
}

func atoi(s string) int {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
