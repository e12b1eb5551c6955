// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/switchboard/lib/bus"
)

// Identifiers with special meaning.
const (
	// Microb is the stock browser and the default.
	Microb = "microb"

	// Custom selects the user's own command template.
	Custom = "other"
)

// Identity is the well-known bus name of the default browser handler.
const Identity = "com.nokia.osso_browser"

// Browser is one entry in the table of known browsers.
type Browser struct {
	ID          string
	DisplayName string

	// Binary must exist for the browser to be selectable. Empty means
	// no check.
	Binary string

	// Strategy is the launch strategy for the browser. Nil for Custom,
	// whose strategy is built from the user's template.
	Strategy Strategy
}

// KnownBrowsers returns the browser table for a user whose home
// directory is home. The first entry is the default.
func KnownBrowsers(home string) []Browser {
	return []Browser{
		{
			ID:          Microb,
			DisplayName: "MicroB (stock browser)",
			Strategy: IdentityHandoff{
				ID:          Microb,
				PeerStart:   []string{"/usr/bin/maemo-invoker", "browser"},
				PeerProcess: "browser",
				Identity:    Identity,
				RequestChannel: bus.Address{
					Service:   Identity,
					Path:      "/com/nokia/osso_browser/request",
					Interface: Identity,
				},
				SessionDir:      filepath.Join(home, ".mozilla", "microb"),
				SessionArtifact: "lock",
			},
		},
		{
			ID:          "tear",
			DisplayName: "Tear",
			Binary:      "/usr/bin/tear",
			Strategy: FixedBinary{
				ID:          "tear",
				Path:        "/usr/bin/tear",
				ProcessName: "tear",
				Remote: bus.Address{
					Service:   "com.nokia.tear",
					Path:      "/com/nokia/tear",
					Interface: "com.nokia.Tear",
				},
				NewWindowArgument: "new_window",
			},
		},
		{
			ID:          "fennec",
			DisplayName: "Firefox Mobile",
			Binary:      "/usr/bin/fennec",
			Strategy:    ShellTemplate{ID: "fennec", Pattern: "fennec %s"},
		},
		{
			ID:          "opera",
			DisplayName: "Opera Mobile",
			Binary:      "/usr/bin/opera",
			Strategy:    ShellTemplate{ID: "opera", Pattern: "opera %s"},
		},
		{
			ID:          "midori",
			DisplayName: "Midori",
			Binary:      "/usr/bin/midori",
			Strategy:    ShellTemplate{ID: "midori", Pattern: "midori %s"},
		},
		{
			ID:          Custom,
			DisplayName: "Other",
		},
	}
}

// Registry resolves browser identifiers to strategies.
type Registry struct {
	browsers  []Browser
	installed func(path string) bool
	logger    *slog.Logger
}

// NewRegistry returns a registry over browsers. The first entry is the
// default and must carry a Strategy. installed reports whether a
// browser binary is present; nil checks the filesystem.
func NewRegistry(browsers []Browser, installed func(path string) bool, logger *slog.Logger) *Registry {
	if len(browsers) == 0 || browsers[0].Strategy == nil {
		panic("strategy: registry needs a default browser with a strategy")
	}
	if installed == nil {
		installed = executableExists
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{browsers: browsers, installed: installed, logger: logger}
}

// Browsers returns the table the registry resolves against.
func (r *Registry) Browsers() []Browser {
	return append([]Browser(nil), r.browsers...)
}

// Default returns the default strategy.
func (r *Registry) Default() Strategy {
	return r.browsers[0].Strategy
}

// Lookup returns the table entry for id.
func (r *Registry) Lookup(id string) (Browser, bool) {
	for _, browser := range r.browsers {
		if browser.ID == id {
			return browser, true
		}
	}
	return Browser{}, false
}

// Resolve returns the strategy for the configured identifier id.
// customTemplate is the user's command template, consulted only when
// id is Custom. Resolve always returns a strategy.
func (r *Registry) Resolve(id, customTemplate string) Strategy {
	if id == "" {
		return r.Default()
	}

	if id == Custom {
		if customTemplate == "" {
			r.logger.Warn("custom browser selected without a command, using default",
				"default_browser", id,
				"fallback", r.Default().Browser(),
			)
			return r.Default()
		}
		return ShellTemplate{ID: Custom, Pattern: customTemplate}
	}

	browser, known := r.Lookup(id)
	if !known || browser.Strategy == nil {
		r.logger.Warn("unknown default browser, using default",
			"default_browser", id,
			"fallback", r.Default().Browser(),
		)
		return r.Default()
	}

	if browser.Binary != "" && !r.installed(browser.Binary) {
		r.logger.Warn("default browser is not installed, using default",
			"default_browser", id,
			"binary", browser.Binary,
			"fallback", r.Default().Browser(),
		)
		return r.Default()
	}

	return browser.Strategy
}

// executableExists reports whether path is a regular file with an
// execute bit set.
func executableExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}

// Handoff returns the first identity-handoff strategy in the table.
// The switchboard_launch_microb request uses it whatever the configured
// default.
func (r *Registry) Handoff() (IdentityHandoff, bool) {
	for _, browser := range r.browsers {
		if handoff, ok := browser.Strategy.(IdentityHandoff); ok {
			return handoff, true
		}
	}
	return IdentityHandoff{}, false
}
