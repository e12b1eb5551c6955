// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shellquote turns an untrusted address into a single token that
// a POSIX shell will pass through unexpanded, and splices that token into
// a user-supplied command template.
//
// The quoting scheme wraps the value in single quotes. A single quote
// cannot appear inside a single-quoted shell word, so every embedded
// apostrophe is rewritten to its URL percent-encoding (%27). Browsers
// decode %27 back to an apostrophe, so the address survives the trip
// through the shell intact. Nothing else is escaped: inside single
// quotes the shell treats every other byte literally.
package shellquote

import (
	"math"
	"strings"
)

// escapedQuote replaces each single quote in the quoted output.
const escapedQuote = "%27"

// Quote returns s wrapped in single quotes with every embedded single
// quote replaced by %27. The empty string quotes to the empty string
// (no quotes at all), so a template applied to an absent address stays
// free of a stray '' argument.
//
// The result length is exactly len(s) + 2 + 2*n where n is the number
// of single quotes in s. Quote panics if that size does not fit in an
// int.
func Quote(s string) string {
	if s == "" {
		return ""
	}

	quotes := strings.Count(s, "'")
	size := quotedSize(len(s), quotes)

	var builder strings.Builder
	builder.Grow(size)
	builder.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			builder.WriteString(escapedQuote)
			continue
		}
		builder.WriteByte(s[i])
	}
	builder.WriteByte('\'')
	return builder.String()
}

// quotedSize computes len + 2 + 2*quotes, panicking if any step of the
// arithmetic would overflow.
func quotedSize(length, quotes int) int {
	extra := len(escapedQuote) - 1
	if quotes > (math.MaxInt-2)/extra {
		panic("shellquote: quoted size overflows int")
	}
	grown := quotes * extra
	if length > math.MaxInt-2-grown {
		panic("shellquote: quoted size overflows int")
	}
	return length + 2 + grown
}

// Format substitutes quoted for the first %s in pattern and collapses
// each %% to a single %, as printf would. A pattern without %s is
// returned with only its %% collapsed; the address is then simply not
// part of the command line. Further %s occurrences and any other %
// sequence are left as written. Nothing inside quoted is touched.
func Format(pattern, quoted string) string {
	var builder strings.Builder
	builder.Grow(len(pattern) + len(quoted))
	substituted := false
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '%' && i+1 < len(pattern) {
			switch {
			case pattern[i+1] == '%':
				builder.WriteByte('%')
				i++
				continue
			case pattern[i+1] == 's' && !substituted:
				builder.WriteString(quoted)
				substituted = true
				i++
				continue
			}
		}
		builder.WriteByte(pattern[i])
	}
	return builder.String()
}

// Command quotes address and splices it into pattern. It is the one-call
// form used when building a shell command line for a template browser.
func Command(pattern, address string) string {
	return Format(pattern, Quote(address))
}
