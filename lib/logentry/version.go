// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logentry

import (
	"errors"
	"fmt"
)

// Format versions. The version is written once at the start of every
// stream and selects the row of the policy table used for every entry
// in that stream.
const (
	// OldestVersion is the oldest format still decoded.
	OldestVersion = 5

	// CurrentVersion is the format written by default.
	CurrentVersion = 8
)

// VersionPolicy lists the optional encoding features of one format
// version.
type VersionPolicy struct {
	Version int

	// HasFilteredBit is true when the level byte carries the
	// is-filtered marker.
	HasFilteredBit bool

	// HasUniquifier is true when every timestamp is followed by its
	// uniquifier byte.
	HasUniquifier bool

	// HasDebugLevel is true when the Debug severity exists. Without it
	// severities are stored shifted right by one bit (Trace=1 ...
	// Fatal=16) and the filtered marker is 0x20.
	HasDebugLevel bool
}

var policies = [...]VersionPolicy{
	{Version: 5},
	{Version: 6, HasFilteredBit: true},
	{Version: 7, HasFilteredBit: true, HasUniquifier: true},
	{Version: 8, HasFilteredBit: true, HasUniquifier: true, HasDebugLevel: true},
}

// ErrUnsupportedVersion is returned for versions outside
// [OldestVersion, CurrentVersion].
var ErrUnsupportedVersion = errors.New("unsupported log format version")

// Policy returns the policy table row for version.
func Policy(version int) (VersionPolicy, error) {
	if version < OldestVersion || version > CurrentVersion {
		return VersionPolicy{}, fmt.Errorf("%w: %d (supported %d to %d)",
			ErrUnsupportedVersion, version, OldestVersion, CurrentVersion)
	}
	return policies[version-OldestVersion], nil
}

// SupportedVersions returns every decodable version, oldest first.
func SupportedVersions() []int {
	versions := make([]int, 0, len(policies))
	for _, policy := range policies {
		versions = append(versions, policy.Version)
	}
	return versions
}

// encodeLevel maps a level onto the level byte of this version. Debug
// degrades to Trace when the version has no Debug level, and the
// filtered marker is dropped when the version cannot carry it.
func (policy VersionPolicy) encodeLevel(level Level) byte {
	severity := level.Severity()
	filtered := policy.HasFilteredBit && level.IsFiltered()
	if policy.HasDebugLevel {
		encoded := byte(severity)
		if filtered {
			encoded |= byte(LevelIsFiltered)
		}
		return encoded
	}
	if severity == LevelDebug {
		severity = LevelTrace
	}
	encoded := byte(severity>>1) & 0x1F
	if filtered {
		encoded |= 0x20
	}
	return encoded
}

// decodeLevel is the inverse of encodeLevel. Versions without Debug
// can never yield it: their stored severities are shifted back left.
func (policy VersionPolicy) decodeLevel(encoded byte) (Level, error) {
	var severity Level
	var filtered bool
	if policy.HasDebugLevel {
		if encoded&^byte(LevelMask|LevelIsFiltered) != 0 {
			return LevelNone, fmt.Errorf("%w: level byte 0x%02x", ErrMalformed, encoded)
		}
		severity = Level(encoded) & LevelMask
		filtered = Level(encoded)&LevelIsFiltered != 0
	} else {
		if encoded&^byte(0x3F) != 0 {
			return LevelNone, fmt.Errorf("%w: level byte 0x%02x", ErrMalformed, encoded)
		}
		severity = Level(encoded&0x1F) << 1
		filtered = encoded&0x20 != 0
	}
	if !severity.Valid() {
		return LevelNone, fmt.Errorf("%w: level byte 0x%02x has no single severity", ErrMalformed, encoded)
	}
	if filtered && !policy.HasFilteredBit {
		return LevelNone, fmt.Errorf("%w: filtered marker in version %d level byte", ErrMalformed, policy.Version)
	}
	if filtered {
		return severity | LevelIsFiltered, nil
	}
	return severity, nil
}

// Representable returns the entry as it survives a round trip through
// this version: Debug becomes Trace, the filtered marker and the
// uniquifiers disappear when the version lacks them. Entries already
// representable are returned unchanged.
func (policy VersionPolicy) Representable(entry *Entry) *Entry {
	normalized := *entry
	if entry.Kind != KindCloseGroup {
		level, _ := policy.decodeLevel(policy.encodeLevel(entry.Level))
		normalized.Level = level
	}
	if !policy.HasUniquifier {
		normalized.Time.Uniquifier = 0
		if entry.Multicast != nil {
			envelope := *entry.Multicast
			envelope.PreviousTime.Uniquifier = 0
			normalized.Multicast = &envelope
		}
	}
	return &normalized
}
