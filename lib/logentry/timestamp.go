// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logentry

import (
	"fmt"
	"math"
	"time"
)

// Timestamp is the total order key of entries: a UTC instant at
// nanosecond resolution plus a uniquifier that orders entries sharing
// the same instant.
type Timestamp struct {
	Time       time.Time
	Uniquifier uint8
}

// NewTimestamp returns a timestamp for t with a zero uniquifier. The
// instant is normalized to UTC without a monotonic reading so that
// encoded and decoded stamps compare equal.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC().Round(0)}
}

// IsZero reports whether the stamp is the unknown stamp.
func (stamp Timestamp) IsZero() bool {
	return stamp.Time.IsZero() && stamp.Uniquifier == 0
}

// Compare orders stamps by instant, then by uniquifier. It returns -1,
// 0 or +1.
func (stamp Timestamp) Compare(other Timestamp) int {
	if c := stamp.Time.Compare(other.Time); c != 0 {
		return c
	}
	switch {
	case stamp.Uniquifier < other.Uniquifier:
		return -1
	case stamp.Uniquifier > other.Uniquifier:
		return 1
	default:
		return 0
	}
}

// Equal reports whether both stamps denote the same position.
func (stamp Timestamp) Equal(other Timestamp) bool {
	return stamp.Compare(other) == 0
}

// Next returns the smallest stamp strictly greater than stamp that is
// not earlier than now. When now is after stamp the result is now with
// a zero uniquifier; otherwise the uniquifier is incremented, and on
// uniquifier overflow the instant advances by one nanosecond.
func (stamp Timestamp) Next(now time.Time) Timestamp {
	candidate := NewTimestamp(now)
	if candidate.Compare(stamp) > 0 {
		return candidate
	}
	if stamp.Uniquifier < math.MaxUint8 {
		return Timestamp{Time: stamp.Time, Uniquifier: stamp.Uniquifier + 1}
	}
	return Timestamp{Time: stamp.Time.Add(time.Nanosecond)}
}

// String formats the stamp as RFC 3339 with nanoseconds, followed by
// "(n)" when the uniquifier is non-zero.
func (stamp Timestamp) String() string {
	if stamp.Time.IsZero() {
		return "unknown"
	}
	formatted := stamp.Time.UTC().Format(time.RFC3339Nano)
	if stamp.Uniquifier != 0 {
		return fmt.Sprintf("%s(%d)", formatted, stamp.Uniquifier)
	}
	return formatted
}
