// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sampleRecord struct {
	Path     string    `cbor:"path"`
	Offsets  []int64   `cbor:"offsets"`
	Modified time.Time `cbor:"modified"`
	Comment  string    `cbor:"comment,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	t.Parallel()
	original := sampleRecord{
		Path:     "/var/log/ckmon/build-20260301T101112Z-0001.ckmon",
		Offsets:  []int64{4, 31, 92},
		Modified: time.Date(2026, 3, 1, 10, 11, 12, 123456789, time.UTC),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Path != original.Path || !decoded.Modified.Equal(original.Modified) {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if len(decoded.Offsets) != 3 || decoded.Offsets[2] != 92 {
		t.Errorf("offsets = %v", decoded.Offsets)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()
	record := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	t.Parallel()
	data, err := Marshal(map[string]any{"path": "a.ckmon", "future": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Path != "a.ckmon" {
		t.Errorf("Path = %q", decoded.Path)
	}
}

func TestAnyDecodesToStringMap(t *testing.T) {
	t.Parallel()
	data, err := Marshal(map[string]any{"nested": map[string]any{"key": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested decoded as %T", outer["nested"])
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()
	data, err := Marshal(sampleRecord{Path: "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"path": "x"`) {
		t.Errorf("Diagnose = %s", notation)
	}
}
