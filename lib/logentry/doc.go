// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logentry defines activity log entries and their compact
// binary encoding.
//
// An entry is one of three kinds: a line, the opening of a group, or
// the closing of a group. Lines and group openings carry a level, a
// tag set, a text, an optional source location and an optional
// exception chain ([ExceptionData]). Group closings carry the
// conclusions gathered while the group was open. Every entry has a
// [Timestamp]: a UTC instant plus a uniquifier byte that makes the
// pair a total order even when several entries share an instant.
//
// Entries written into files shared by several loggers are wrapped in
// a [Multicast] envelope naming the originating process and monitor,
// the group depth at emission time, and a back-link to the kind and
// timestamp of the previous entry of that same monitor.
//
// # Encoding
//
// [Write] and [Marshal] encode one entry; [Read] decodes one. Each
// entry starts with a discriminant byte combining the kind with
// presence flags. The byte 0x00 is reserved: it terminates a stream.
// Strings are uvarint length-prefixed. The exception chain is encoded
// recursively with a presence bit per optional child.
//
// The encoding differs slightly between format versions. [Policy]
// returns the capability table for a version: whether the level byte
// carries the is-filtered marker, whether timestamps carry the
// uniquifier, and whether the Debug level exists. One codec consults
// the table; there are no per-version codec types.
//
// Decoding reports three distinct failure shapes so that callers can
// classify how a stream ended:
//
//   - [ErrMissingTerminator]: the stream ended exactly between two
//     entries without the terminator byte.
//   - [ErrTruncated]: the stream ended inside an entry.
//   - [ErrMalformed]: the bytes violate the grammar.
//
// A clean terminator is reported by Read returning a nil entry and a
// nil error.
package logentry
