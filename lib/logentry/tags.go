// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logentry

import (
	"slices"
	"strings"
)

// tagSeparator joins tag names in the canonical form. Tag names
// cannot contain it.
const tagSeparator = "|"

// Tags is an unordered set of tag names held in canonical form: names
// sorted, de-duplicated and joined with "|". The canonical form makes
// equal sets compare equal as strings and is what goes on the wire.
// The zero value is the empty set.
type Tags string

// NewTags builds a canonical tag set. Empty names are ignored and
// names containing "|" are split.
func NewTags(names ...string) Tags {
	var parts []string
	for _, name := range names {
		for _, part := range strings.Split(name, tagSeparator) {
			part = strings.TrimSpace(part)
			if part != "" {
				parts = append(parts, part)
			}
		}
	}
	slices.Sort(parts)
	parts = slices.Compact(parts)
	return Tags(strings.Join(parts, tagSeparator))
}

// IsEmpty reports whether the set has no names.
func (tags Tags) IsEmpty() bool { return tags == "" }

// Names returns the tag names in canonical order.
func (tags Tags) Names() []string {
	if tags == "" {
		return nil
	}
	return strings.Split(string(tags), tagSeparator)
}

// Contains reports whether the set holds name.
func (tags Tags) Contains(name string) bool {
	_, found := slices.BinarySearch(tags.Names(), name)
	return found
}

// ContainsAll reports whether every name of other is in tags. The
// empty set is contained in every set.
func (tags Tags) ContainsAll(other Tags) bool {
	names := tags.Names()
	for _, name := range other.Names() {
		if _, found := slices.BinarySearch(names, name); !found {
			return false
		}
	}
	return true
}

// Overlaps reports whether the two sets share at least one name.
func (tags Tags) Overlaps(other Tags) bool {
	names := tags.Names()
	for _, name := range other.Names() {
		if _, found := slices.BinarySearch(names, name); found {
			return true
		}
	}
	return false
}

// Union returns the canonical union of both sets.
func (tags Tags) Union(other Tags) Tags {
	if other == "" {
		return tags
	}
	if tags == "" {
		return other
	}
	return NewTags(string(tags), string(other))
}

// String returns the canonical form.
func (tags Tags) String() string { return string(tags) }
