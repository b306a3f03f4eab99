// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logentry

import (
	"fmt"
	"math/bits"
	"strings"
)

// Kind identifies the shape of an entry. The numeric values are part
// of the wire format.
type Kind uint8

const (
	// KindNone is never the kind of a decoded entry. It appears in
	// multicast back-links when the monitor had no previous entry.
	KindNone Kind = 0

	// KindLine is a single log line.
	KindLine Kind = 1

	// KindOpenGroup opens a group. Subsequent entries of the same
	// monitor are nested inside it until the matching KindCloseGroup.
	KindOpenGroup Kind = 2

	// KindCloseGroup closes the innermost open group.
	KindCloseGroup Kind = 3
)

// String returns the lower-case name of the kind.
func (kind Kind) String() string {
	switch kind {
	case KindNone:
		return "none"
	case KindLine:
		return "line"
	case KindOpenGroup:
		return "open"
	case KindCloseGroup:
		return "close"
	default:
		return fmt.Sprintf("kind(%d)", uint8(kind))
	}
}

// Level is a severity plus the is-filtered marker. Exactly one
// severity bit is set on a well-formed line or group.
type Level uint8

const (
	LevelNone  Level = 0
	LevelDebug Level = 1
	LevelTrace Level = 2
	LevelInfo  Level = 4
	LevelWarn  Level = 8
	LevelError Level = 16
	LevelFatal Level = 32

	// LevelMask selects the severity bits.
	LevelMask Level = 63

	// LevelIsFiltered records that level filtering has already been
	// applied upstream, so downstream consumers must not filter the
	// entry again on its level alone.
	LevelIsFiltered Level = 64
)

// Severity returns the level without the is-filtered marker.
func (level Level) Severity() Level { return level & LevelMask }

// IsFiltered reports whether the is-filtered marker is set.
func (level Level) IsFiltered() bool { return level&LevelIsFiltered != 0 }

// Valid reports whether exactly one severity bit is set, as required
// of every line and group.
func (level Level) Valid() bool {
	return bits.OnesCount8(uint8(level.Severity())) == 1
}

// AtLeast reports whether the severity of level is greater than or
// equal to the severity of minimum. LevelNone as minimum admits
// everything.
func (level Level) AtLeast(minimum Level) bool {
	return level.Severity() >= minimum.Severity()
}

// String returns the severity name, suffixed with "+filtered" when the
// marker is set.
func (level Level) String() string {
	var name string
	switch level.Severity() {
	case LevelNone:
		name = "none"
	case LevelDebug:
		name = "debug"
	case LevelTrace:
		name = "trace"
	case LevelInfo:
		name = "info"
	case LevelWarn:
		name = "warn"
	case LevelError:
		name = "error"
	case LevelFatal:
		name = "fatal"
	default:
		name = fmt.Sprintf("level(%d)", uint8(level.Severity()))
	}
	if level.IsFiltered() {
		return name + "+filtered"
	}
	return name
}

// ParseLevel parses a severity name as produced by String (without the
// filtered suffix). Matching is case-insensitive.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return LevelNone, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelNone, fmt.Errorf("unknown log level %q", name)
	}
}
