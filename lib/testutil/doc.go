// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for switchboard
// packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests never hang on a channel that is never served. They
// are the only place tests touch the wall clock.
//
// [WriteFile] and [Symlink] build small filesystem fixtures (session
// directories, fake procfs entries, config files) and fail the test on
// any setup error.
package testutil
