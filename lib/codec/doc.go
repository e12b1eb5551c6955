// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the switchboard's CBOR configuration.
//
// On-disk state the switchboard writes for itself (the in-flight
// handoff record) is CBOR. Every writer goes through this package so
// that the same value always encodes to the same bytes: the encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2), with sorted map
// keys and the smallest integer encodings.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Types serialized here carry `cbor` struct tags. Unknown fields are
// ignored on decode, so a newer switchboard can add fields without
// breaking an older one reading the same file.
package codec
