// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR configuration for on-disk
// state that is not part of the log format itself, such as the offset
// index cached next to large log files.
//
// The log streams use their own compact binary encoding (see
// lib/logentry); CBOR is only used where a self-describing,
// forward-compatible record is worth the extra bytes.
//
//	data, err := codec.Marshal(index)
//	err = codec.Unmarshal(data, &index)
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
//
// Types stored through this package use `cbor` struct tags.
package codec
