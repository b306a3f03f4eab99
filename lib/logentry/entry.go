// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logentry

import "slices"

// Entry is one decoded unit of log data. Entries are values: once
// built or decoded they are not mutated.
type Entry struct {
	Kind Kind

	// Level is set for lines and opened groups. Close entries carry
	// LevelNone.
	Level Level

	Tags Tags

	// Text is the line or group text. Empty for close entries.
	Text string

	// Time is the emission stamp; for close entries, the closing stamp.
	Time Timestamp

	// FileName and LineNumber locate the emitting source, when known.
	FileName   string
	LineNumber int

	// Exception is only meaningful for lines and opened groups.
	Exception *ExceptionData

	// Conclusions are the short results attached when a group closes.
	Conclusions []string

	// Multicast is non-nil for entries written into files shared by
	// several monitors.
	Multicast *Multicast
}

// Multicast attributes an entry to one logical monitor when entries of
// several monitors are interleaved in one stream.
type Multicast struct {
	ProcessID int

	// MonitorID identifies the logical monitor across its lifetime,
	// across files and across process boundaries.
	MonitorID string

	// Depth is the group nesting depth at emission time.
	Depth int

	// PreviousKind and PreviousTime link back to the entry the same
	// monitor emitted immediately before this one. PreviousKind is
	// KindNone for the first entry of a monitor.
	PreviousKind Kind
	PreviousTime Timestamp
}

// Key is the identity under which entries observed by several output
// handlers are collapsed into one logical event.
type Key struct {
	Time Timestamp
	Kind Kind
	Text string
}

// Key returns the deduplication identity of the entry.
func (entry *Entry) Key() Key {
	return Key{Time: entry.Time, Kind: entry.Kind, Text: entry.Text}
}

// HasSourceLocation reports whether a file name or line number is set.
func (entry *Entry) HasSourceLocation() bool {
	return entry.FileName != "" || entry.LineNumber != 0
}

// WithMulticast returns a shallow copy of the entry wrapped in the
// given envelope.
func (entry *Entry) WithMulticast(envelope Multicast) *Entry {
	wrapped := *entry
	wrapped.Multicast = &envelope
	return &wrapped
}

// Equal reports whether both entries are field-for-field identical.
// Timestamps compare by instant, nil and empty conclusion lists are
// equal.
func (entry *Entry) Equal(other *Entry) bool {
	if entry == nil || other == nil {
		return entry == nil && other == nil
	}
	if entry.Kind != other.Kind ||
		entry.Level != other.Level ||
		entry.Tags != other.Tags ||
		entry.Text != other.Text ||
		!entry.Time.Equal(other.Time) ||
		entry.FileName != other.FileName ||
		entry.LineNumber != other.LineNumber {
		return false
	}
	if !entry.Exception.Equal(other.Exception) {
		return false
	}
	if !slices.Equal(entry.Conclusions, other.Conclusions) {
		return false
	}
	return entry.Multicast.Equal(other.Multicast)
}

// Equal reports whether both envelopes are identical.
func (envelope *Multicast) Equal(other *Multicast) bool {
	if envelope == nil || other == nil {
		return envelope == nil && other == nil
	}
	return envelope.ProcessID == other.ProcessID &&
		envelope.MonitorID == other.MonitorID &&
		envelope.Depth == other.Depth &&
		envelope.PreviousKind == other.PreviousKind &&
		envelope.PreviousTime.Equal(other.PreviousTime)
}
