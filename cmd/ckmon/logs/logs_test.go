// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/lib/clock"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logfile"
	"github.com/bureau-foundation/ckmon/lib/logstream"
	"github.com/bureau-foundation/ckmon/lib/monitor"
	"github.com/bureau-foundation/ckmon/lib/multilog"
	"github.com/bureau-foundation/ckmon/lib/testutil"
)

var epoch = time.Date(2026, 6, 9, 12, 0, 0, 0, time.UTC)

// writeBuildLog records a small nested session of monitor "build" and
// returns the files written.
func writeBuildLog(t *testing.T, directory string) []string {
	t.Helper()
	fake := clock.Fake(epoch)
	handler, err := logfile.NewHandler(logfile.HandlerOptions{
		Directory: directory,
		Prefix:    "build",
		Clock:     fake,
		Logger:    testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	m := monitor.New(monitor.Options{ID: "build", Clock: fake, Logger: testutil.DiscardLogger()})
	m.AddClient(handler.NewClient())

	m.Log(logentry.LevelInfo, "starting", "ci")
	fake.Advance(time.Second)
	m.OpenGroup(logentry.LevelInfo, "compile")
	m.Log(logentry.LevelWarn, "slow")
	m.LogError(logentry.LevelError, "failed", errors.New("disk full"))
	m.Log(logentry.LevelDebug, "noise")
	m.EndGroup("done")
	m.OpenGroup(logentry.LevelDebug, "quiet")
	m.EndGroup("hidden")

	if err := handler.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return handler.Files()
}

// writeTruncated writes entries without the end marker.
func writeTruncated(t *testing.T, path string) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	writer, err := logstream.NewWriter(file, logstream.WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	writer.Write(&logentry.Entry{
		Kind:  logentry.KindLine,
		Level: logentry.LevelInfo,
		Text:  "cut short",
		Time:  logentry.Timestamp{Time: epoch},
	})
	writer.Abandon()
	file.Close()
}

func readActivity(t *testing.T, paths []string, includeTruncated bool) *multilog.ActivityMap {
	t.Helper()
	reader := multilog.NewReader(multilog.Options{
		IncludeTruncated: includeTruncated,
		Logger:           testutil.DiscardLogger(),
	})
	reader.Add(paths...)
	return reader.ActivityMap()
}

func TestDumpPrintsNestedTimeline(t *testing.T) {
	t.Parallel()
	paths := writeBuildLog(t, t.TempDir())

	var output bytes.Buffer
	err := dump(&output, readActivity(t, paths, false), dumpOptions{minimal: logentry.LevelTrace})
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	text := output.String()
	for _, want := range []string{
		"== build (",
		"2026-06-09T12:00:00.000000Z INFO  starting [ci]",
		"INFO  + compile",
		"WARN    slow",
		"ERROR   failed",
		"! errorString: disk full",
		"- done",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q\n\nFull output:\n%s", want, text)
		}
	}
	for _, unwanted := range []string{"noise", "quiet", "hidden", "\x1b["} {
		if strings.Contains(text, unwanted) {
			t.Errorf("output contains %q\n\nFull output:\n%s", unwanted, text)
		}
	}
}

func TestDumpKeepsNestingAcrossLostGroupOpen(t *testing.T) {
	t.Parallel()
	at := func(seconds int) logentry.Timestamp {
		return logentry.Timestamp{Time: epoch.Add(time.Duration(seconds) * time.Second)}
	}
	entry := func(kind logentry.Kind, text string, stamp logentry.Timestamp, depth int,
		linkKind logentry.Kind, link logentry.Timestamp) *logentry.Entry {
		result := &logentry.Entry{
			Kind: kind,
			Text: text,
			Time: stamp,
			Multicast: &logentry.Multicast{
				ProcessID:    7,
				MonitorID:    "worker",
				Depth:        depth,
				PreviousKind: linkKind,
				PreviousTime: link,
			},
		}
		if kind != logentry.KindCloseGroup {
			result.Level = logentry.LevelInfo
		}
		return result
	}
	// The group opened at second 2 was never recorded.
	path := filepath.Join(t.TempDir(), "gap.ckmon")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	writer, err := logstream.NewWriter(file, logstream.WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []*logentry.Entry{
		entry(logentry.KindLine, "before", at(1), 0, logentry.KindNone, logentry.Timestamp{}),
		entry(logentry.KindLine, "inside", at(3), 1, logentry.KindOpenGroup, at(2)),
		entry(logentry.KindCloseGroup, "", at(4), 0, logentry.KindLine, at(3)),
		entry(logentry.KindLine, "after", at(5), 0, logentry.KindCloseGroup, at(4)),
	} {
		if err := writer.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	file.Close()

	var output bytes.Buffer
	if err := dump(&output, readActivity(t, []string{path}, false), dumpOptions{}); err != nil {
		t.Fatalf("dump: %v", err)
	}
	text := output.String()
	for _, want := range []string{
		"(4 entries, 1 missing, 1 files)",
		"2026-06-09T12:00:02.000000Z       + <missing data>",
		"INFO    inside",
		"INFO  after",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output lacks %q:\n%s", want, text)
		}
	}
}

func TestDumpUnknownMonitor(t *testing.T) {
	t.Parallel()
	paths := writeBuildLog(t, t.TempDir())
	err := dump(&bytes.Buffer{}, readActivity(t, paths, false), dumpOptions{monitor: "deploy"})
	if err == nil || !strings.Contains(err.Error(), "deploy") {
		t.Errorf("dump of unknown monitor error = %v", err)
	}
}

func TestDumpTruncatedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "crash.ckmon")
	writeTruncated(t, path)

	var output bytes.Buffer
	if err := dump(&output, readActivity(t, []string{path}, false), dumpOptions{}); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if strings.Contains(output.String(), "cut short") {
		t.Errorf("damaged file printed without --include-truncated:\n%s", output.String())
	}

	output.Reset()
	if err := dump(&output, readActivity(t, []string{path}, true), dumpOptions{}); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(output.String(), "cut short") {
		t.Errorf("damaged file missing with --include-truncated:\n%s", output.String())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	good := writeBuildLog(t, directory)
	bad := filepath.Join(directory, "crash.ckmon")
	writeTruncated(t, bad)

	var reports []fileReport
	for _, path := range append(good, bad) {
		reports = append(reports, newFileReport(logfile.Open(path)))
	}

	var output bytes.Buffer
	err := validate(&output, reports, &cli.JSONOutput{})
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("validate error = %v, want exit code 1", err)
	}
	text := output.String()
	if !strings.Contains(text, "ok    "+good[0]) {
		t.Errorf("valid file not reported ok:\n%s", text)
	}
	if !strings.Contains(text, "FAIL  "+bad) {
		t.Errorf("damaged file not reported:\n%s", text)
	}
	if !strings.Contains(text, "1 of 2 files unreadable") {
		t.Errorf("summary missing:\n%s", text)
	}

	output.Reset()
	if err := validate(&output, reports[:1], &cli.JSONOutput{OutputJSON: true}); err != nil {
		t.Fatalf("validate of valid file: %v", err)
	}
	var decoded []fileReport
	if err := json.Unmarshal(output.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON output: %v\n%s", err, output.String())
	}
	if len(decoded) != 1 || !decoded[0].Valid || decoded[0].Version != logentry.CurrentVersion {
		t.Errorf("decoded reports = %+v", decoded)
	}
	if len(decoded[0].Monitors) != 1 || decoded[0].Monitors[0] != "build" {
		t.Errorf("monitors = %v, want [build]", decoded[0].Monitors)
	}
}

func TestActivity(t *testing.T) {
	t.Parallel()
	paths := writeBuildLog(t, t.TempDir())
	activityMap := readActivity(t, paths, false)

	var output bytes.Buffer
	if err := listActivity(&output, activityMap, &cli.JSONOutput{OutputJSON: true}, false); err != nil {
		t.Fatalf("listActivity: %v", err)
	}
	var summaries []monitorSummary
	if err := json.Unmarshal(output.Bytes(), &summaries); err != nil {
		t.Fatalf("JSON output: %v\n%s", err, output.String())
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d monitors, want 1", len(summaries))
	}
	summary := summaries[0]
	// starting, compile, slow, failed, noise, close, quiet, close.
	if summary.Monitor != "build" || summary.Entries != 8 || summary.Missing != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.First != "2026-06-09T12:00:00.000000Z" {
		t.Errorf("First = %q", summary.First)
	}

	output.Reset()
	if err := listActivity(&output, activityMap, &cli.JSONOutput{}, false); err != nil {
		t.Fatalf("listActivity: %v", err)
	}
	if !strings.Contains(output.String(), "MONITOR") || !strings.Contains(output.String(), "build") {
		t.Errorf("table output:\n%s", output.String())
	}
}

func TestBuildIndexes(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	paths := writeBuildLog(t, filepath.Join(directory, "logs"))
	indexDirectory := filepath.Join(directory, "index")

	var output bytes.Buffer
	if err := buildIndexes(&output, indexDirectory, paths, false, testutil.DiscardLogger()); err != nil {
		t.Fatalf("buildIndexes: %v", err)
	}
	if !strings.HasPrefix(output.String(), "built") {
		t.Errorf("first pass:\n%s", output.String())
	}

	output.Reset()
	if err := buildIndexes(&output, indexDirectory, paths, false, testutil.DiscardLogger()); err != nil {
		t.Fatalf("buildIndexes: %v", err)
	}
	if !strings.HasPrefix(output.String(), "cached") || !strings.Contains(output.String(), "(8 entries)") {
		t.Errorf("second pass:\n%s", output.String())
	}
}

func TestBuildIndexesDiagnose(t *testing.T) {
	t.Parallel()
	directory := t.TempDir()
	paths := writeBuildLog(t, filepath.Join(directory, "logs"))
	indexDirectory := filepath.Join(directory, "index")

	var output bytes.Buffer
	if err := buildIndexes(&output, indexDirectory, paths, true, testutil.DiscardLogger()); err != nil {
		t.Fatalf("buildIndexes: %v", err)
	}
	for _, want := range []string{`"path"`, `"offsets"`, `"fingerprint"`} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("diagnostic output lacks %s:\n%s", want, output.String())
		}
	}
}
