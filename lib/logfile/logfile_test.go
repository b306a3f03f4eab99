// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/ckmon/lib/clock"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logstream"
	"github.com/bureau-foundation/ckmon/lib/monitor"
	"github.com/bureau-foundation/ckmon/lib/testutil"
)

var epoch = time.Date(2026, 6, 9, 12, 0, 0, 0, time.UTC)

func sampleEntries(count int) []*logentry.Entry {
	entries := make([]*logentry.Entry, count)
	for i := range entries {
		entries[i] = &logentry.Entry{
			Kind:  logentry.KindLine,
			Level: logentry.LevelInfo,
			Text:  strings.Repeat("x", i%7) + "line",
			Time:  logentry.Timestamp{Time: epoch.Add(time.Duration(i) * time.Millisecond)},
		}
	}
	return entries
}

// writeFile writes entries to a new file in directory. A false
// terminate leaves the stream without its terminator.
func writeFile(t *testing.T, directory, name string, compression logstream.Compression, entries []*logentry.Entry, terminate bool) string {
	t.Helper()
	path := filepath.Join(directory, name)
	handle, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer handle.Close()
	writer, err := logstream.NewWriter(handle, logstream.WriterOptions{Compression: compression})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if terminate {
		err = writer.Close()
	} else {
		err = writer.Abandon()
	}
	if err != nil {
		t.Fatalf("finishing %s: %v", path, err)
	}
	return path
}

func TestOpenValidFile(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	entries := sampleEntries(5)
	entries[2].Kind = logentry.KindOpenGroup
	entries[3] = &logentry.Entry{Kind: logentry.KindCloseGroup, Time: entries[3].Time}
	path := writeFile(t, directory, "valid.ckmon", logstream.CompressionNone, entries, true)

	file := Open(path)
	if !file.IsValid() {
		t.Fatalf("file invalid: %v", file.Err)
	}
	if file.Version != logentry.CurrentVersion {
		t.Errorf("Version = %d", file.Version)
	}
	if file.EntryCount() != 5 || file.LineCount != 3 || file.OpenGroupCount != 1 || file.CloseGroupCount != 1 {
		t.Errorf("counts = %d total, %d lines, %d open, %d close",
			file.EntryCount(), file.LineCount, file.OpenGroupCount, file.CloseGroupCount)
	}
	if file.Offsets[0] != logstream.HeaderLength {
		t.Errorf("first offset = %d", file.Offsets[0])
	}
	if !file.FirstTime.Equal(entries[0].Time) || !file.LastTime.Equal(entries[4].Time) {
		t.Errorf("time range = %s..%s", file.FirstTime, file.LastTime)
	}
	if file.Multicast {
		t.Error("plain file reported as multicast")
	}
}

func TestOpenFailuresAreRecorded(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()

	missing := Open(filepath.Join(directory, "missing.ckmon"))
	if missing.IsValid() || !errors.Is(missing.Err, os.ErrNotExist) {
		t.Errorf("missing file Err = %v", missing.Err)
	}

	oldPath := filepath.Join(directory, "old.ckmon")
	if err := os.WriteFile(oldPath, []byte{4, 0, 0, 0, 0}, 0644); err != nil {
		t.Fatal(err)
	}
	old := Open(oldPath)
	if !errors.Is(old.Err, logentry.ErrUnsupportedVersion) || old.Readable() {
		t.Errorf("old file Err = %v, Readable = %v", old.Err, old.Readable())
	}

	truncatedPath := writeFile(t, directory, "truncated.ckmon", logstream.CompressionNone, sampleEntries(3), false)
	truncated := Open(truncatedPath)
	if truncated.IsValid() {
		t.Fatal("file without terminator is valid")
	}
	if !errors.Is(truncated.Err, logentry.ErrMissingTerminator) {
		t.Errorf("truncated Err = %v", truncated.Err)
	}
	if truncated.EntryCount() != 3 || !truncated.Readable() {
		t.Errorf("truncated file kept %d offsets", truncated.EntryCount())
	}
}

func TestReadEntryAtEveryCompression(t *testing.T) {
	t.Parallel()
	for _, compression := range []logstream.Compression{
		logstream.CompressionNone, logstream.CompressionGzip, logstream.CompressionZstd, logstream.CompressionLZ4,
	} {
		t.Run(compression.String(), func(t *testing.T) {
			t.Parallel()
			entries := sampleEntries(20)
			path := writeFile(t, t.TempDir(), "f.ckmon", compression, entries, true)
			file := Open(path)
			if !file.IsValid() {
				t.Fatalf("invalid: %v", file.Err)
			}
			if file.Compression != compression {
				t.Errorf("Compression = %s", file.Compression)
			}

			reader := file.NewEntryReader()
			defer reader.Close()
			// Forward, then backwards, then a single jump.
			order := []int{0, 1, 2, 10, 19, 5, 4, 18, 0}
			for _, i := range order {
				entry, err := reader.ReadAt(file.Offsets[i])
				if err != nil {
					t.Fatalf("ReadAt(entry %d): %v", i, err)
				}
				if !entry.Equal(entries[i]) {
					t.Errorf("entry %d = %+v", i, entry)
				}
			}

			single, err := file.ReadEntryAt(file.Offsets[7])
			if err != nil || !single.Equal(entries[7]) {
				t.Errorf("ReadEntryAt = %+v, %v", single, err)
			}
		})
	}
}

func TestReadAtBadOffsets(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "f.ckmon", logstream.CompressionNone, sampleEntries(2), true)
	file := Open(path)
	reader := file.NewEntryReader()
	defer reader.Close()

	if _, err := reader.ReadAt(0); err == nil {
		t.Error("ReadAt inside the header succeeded")
	}
	if _, err := reader.ReadAt(file.Size - 1); err == nil {
		t.Error("ReadAt on the terminator succeeded")
	}
	// The reader recovers after a failure.
	if _, err := reader.ReadAt(file.Offsets[1]); err != nil {
		t.Errorf("ReadAt after failure: %v", err)
	}
}

func TestIndexCache(t *testing.T) {
	t.Parallel()
	logs := t.TempDir()
	cache := t.TempDir()
	path := writeFile(t, logs, "cached.ckmon", logstream.CompressionZstd, sampleEntries(8), true)

	first, hit, err := OpenCached(path, cache)
	if err != nil {
		t.Fatalf("OpenCached: %v", err)
	}
	if hit {
		t.Error("first open hit the cache")
	}
	second, hit, err := OpenCached(path, cache)
	if err != nil {
		t.Fatalf("OpenCached: %v", err)
	}
	if !hit {
		t.Fatal("second open missed the cache")
	}
	if second.EntryCount() != first.EntryCount() || second.Compression != logstream.CompressionZstd ||
		!second.LastTime.Equal(first.LastTime) || !second.ModTime.Equal(first.ModTime) {
		t.Errorf("cached file = %+v, want %+v", second, first)
	}
	entry, err := second.ReadEntryAt(second.Offsets[3])
	if err != nil || entry.Text != sampleEntries(8)[3].Text {
		t.Errorf("ReadEntryAt from cached offsets = %+v, %v", entry, err)
	}

	// Rewriting the file invalidates the index.
	writeFile(t, logs, "cached.ckmon", logstream.CompressionNone, sampleEntries(2), false)
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	third, hit, err := OpenCached(path, cache)
	if err != nil {
		t.Fatalf("OpenCached: %v", err)
	}
	if hit {
		t.Error("stale index was used")
	}
	if third.IsValid() || third.EntryCount() != 2 {
		t.Errorf("refreshed file: valid=%v entries=%d", third.IsValid(), third.EntryCount())
	}

	// The sentinel survives the cache.
	fourth, hit, _ := OpenCached(path, cache)
	if !hit || !errors.Is(fourth.Err, logentry.ErrMissingTerminator) {
		t.Errorf("cached error: hit=%v err=%v", hit, fourth.Err)
	}
}

func TestFingerprintCoversTail(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	path := filepath.Join(directory, "big")
	data := make([]byte, 3*fingerprintWindow)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	before, err := Fingerprint(path, int64(len(data)), epoch)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	data[len(data)-1] = 1
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	after, err := Fingerprint(path, int64(len(data)), epoch)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if string(before) == string(after) {
		t.Error("tail change did not change the fingerprint")
	}
}

func TestHandlerRollsAndLinks(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	fake := clock.Fake(epoch)
	handler, err := NewHandler(HandlerOptions{
		Directory:         directory,
		Prefix:            "build",
		MaxEntriesPerFile: 2,
		ProcessID:         4242,
		Clock:             fake,
		Logger:            testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	monitorID := testutil.UniqueID("monitor")
	m := monitor.New(monitor.Options{ID: monitorID, Clock: fake, Logger: testutil.DiscardLogger()})
	m.AddClient(handler.NewClient())

	m.OpenGroup(logentry.LevelInfo, "group")
	m.Log(logentry.LevelTrace, "first")
	m.Log(logentry.LevelTrace, "second")
	m.EndGroup("done")
	m.Log(logentry.LevelInfo, "after")
	if err := handler.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := handler.Write(monitorID, 0, sampleEntries(1)[0]); err == nil {
		t.Error("Write after Close succeeded")
	}

	files := handler.Files()
	if len(files) != 3 {
		t.Fatalf("created %d files, want 3", len(files))
	}
	var all []*logentry.Entry
	for _, path := range files {
		if !strings.HasPrefix(filepath.Base(path), "build-20260609T120000") || filepath.Ext(path) != Extension {
			t.Errorf("unexpected file name %s", path)
		}
		file := Open(path)
		if !file.IsValid() || !file.Multicast {
			t.Fatalf("%s: valid=%v multicast=%v err=%v", path, file.IsValid(), file.Multicast, file.Err)
		}
		for _, offset := range file.Offsets {
			entry, err := file.ReadEntryAt(offset)
			if err != nil {
				t.Fatalf("ReadEntryAt: %v", err)
			}
			all = append(all, entry)
		}
	}
	if len(all) != 5 {
		t.Fatalf("read %d entries, want 5", len(all))
	}
	if all[0].Multicast.PreviousKind != logentry.KindNone || !all[0].Multicast.PreviousTime.IsZero() {
		t.Errorf("first back-link = %+v", all[0].Multicast)
	}
	for i := 1; i < len(all); i++ {
		envelope := all[i].Multicast
		if envelope.MonitorID != monitorID || envelope.ProcessID != 4242 {
			t.Errorf("entry %d envelope = %+v", i, envelope)
		}
		if envelope.PreviousKind != all[i-1].Kind || !envelope.PreviousTime.Equal(all[i-1].Time) {
			t.Errorf("entry %d back-link = %+v, previous entry %s at %s", i, envelope, all[i-1].Kind, all[i-1].Time)
		}
	}
	depths := []int{0, 1, 1, 0, 0}
	for i, want := range depths {
		if all[i].Multicast.Depth != want {
			t.Errorf("entry %d depth = %d, want %d", i, all[i].Multicast.Depth, want)
		}
	}
}

func TestHandlerOptions(t *testing.T) {
	t.Parallel()
	if _, err := NewHandler(HandlerOptions{}); err == nil {
		t.Error("NewHandler without directory succeeded")
	}
	if _, err := NewHandler(HandlerOptions{Directory: t.TempDir(), Version: 3}); !errors.Is(err, logentry.ErrUnsupportedVersion) {
		t.Errorf("NewHandler(version 3) error = %v", err)
	}
}
