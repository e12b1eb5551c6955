// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the switchboard's user configuration.
//
// [Load] looks in the user's home directory, in order, for:
//
//   - .config/browser-switchboard.yaml (YAML, see [Config] for keys)
//   - .config/browser-switchboard (legacy "key = value" lines)
//   - .config/browser-proxy (the same legacy format, older name)
//
// The first file that exists wins; the others are not consulted. A
// missing file is not an error: the daemon runs on [Default] values.
// An unreadable or malformed file is reported to the caller, which
// logs it and falls back to defaults.
//
// In the legacy format the first occurrence of a key wins, later ones
// are ignored, as are unknown keys. Lines starting with "#" are
// comments, and string values may be wrapped in double quotes.
//
// Values are not validated against the browser table here. An unknown
// default_browser is resolved to the default browser by the strategy
// registry, which logs the substitution.
//
// This package depends on no other switchboard packages.
package config
