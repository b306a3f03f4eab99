// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipelog

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/ckmon/lib/clock"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logstream"
	"github.com/bureau-foundation/ckmon/lib/monitor"
	"github.com/bureau-foundation/ckmon/lib/pipe"
	"github.com/bureau-foundation/ckmon/lib/testutil"
)

var epoch = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

// recorder is the client of the parent monitor.
type recorder struct {
	mu      sync.Mutex
	entries []*logentry.Entry
}

func (r *recorder) add(entry *logentry.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recorder) OnAutoTagsChanged(logentry.Tags) error { return nil }

func (r *recorder) OnOpenGroup(group monitor.Group) error {
	return r.add(group.Data.Entry(logentry.KindOpenGroup))
}

func (r *recorder) OnGroupClosed(group monitor.Group, conclusions []string, stamp logentry.Timestamp) error {
	return r.add(&logentry.Entry{Kind: logentry.KindCloseGroup, Time: stamp, Conclusions: conclusions})
}

func (r *recorder) OnUnfilteredLog(group monitor.Group, data monitor.Data) error {
	return r.add(data.Entry(logentry.KindLine))
}

func (r *recorder) snapshot() []*logentry.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*logentry.Entry(nil), r.entries...)
}

// describe renders entries as "kind level text" lines for comparison.
func describe(entries []*logentry.Entry) string {
	var lines []string
	for _, entry := range entries {
		switch entry.Kind {
		case logentry.KindCloseGroup:
			lines = append(lines, "close "+strings.Join(entry.Conclusions, ","))
		default:
			lines = append(lines, fmt.Sprintf("%s %s %s", entry.Kind, entry.Level.Severity(), entry.Text))
		}
	}
	return strings.Join(lines, "\n")
}

type fixture struct {
	parent   *monitor.Monitor
	recorded *recorder
	receiver *Receiver
	fake     *clock.FakeClock
}

func newFixture(t *testing.T, minimal logentry.Level) *fixture {
	t.Helper()
	fake := clock.Fake(epoch)
	parent := monitor.New(monitor.Options{
		ID:           "parent",
		MinimalLevel: minimal,
		Clock:        fake,
		Logger:       testutil.DiscardLogger(),
	})
	recorded := &recorder{}
	parent.AddClient(recorded)
	receiver, err := NewReceiver(parent, ReceiverOptions{Clock: fake, Logger: testutil.DiscardLogger()})
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	t.Cleanup(func() { receiver.Close() })
	return &fixture{parent: parent, recorded: recorded, receiver: receiver, fake: fake}
}

// connect dials the receiver in-process and releases the receiver's
// own client handle, as a parent does after starting a child.
func (f *fixture) connect(t *testing.T) *Sender {
	t.Helper()
	sender, err := NewSender(f.receiver.ConnectionName(), SenderOptions{Logger: testutil.DiscardLogger()})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	t.Cleanup(func() { sender.Abandon() })
	if err := f.receiver.ReleaseClientHandle(); err != nil {
		t.Fatalf("ReleaseClientHandle: %v", err)
	}
	return sender
}

func (f *fixture) child(sender *Sender) *monitor.Monitor {
	child := monitor.New(monitor.Options{ID: "child", Clock: f.fake, Logger: testutil.DiscardLogger()})
	child.AddClient(sender)
	return child
}

func TestRelayInOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelNone)
	sender := f.connect(t)
	child := f.child(sender)

	const count = 200
	for i := range count {
		f.fake.Advance(time.Millisecond)
		child.Log(logentry.LevelInfo, fmt.Sprintf("line %d", i), "relay")
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if status := f.receiver.WaitEnd(false); status != StatusNormal {
		t.Fatalf("WaitEnd = %v, want normal", status)
	}
	entries := f.recorded.snapshot()
	if len(entries) != count {
		t.Fatalf("received %d entries, want %d", len(entries), count)
	}
	for i, entry := range entries {
		if entry.Text != fmt.Sprintf("line %d", i) {
			t.Fatalf("entry %d text = %q", i, entry.Text)
		}
		if !entry.Level.IsFiltered() {
			t.Errorf("entry %d level %v lacks the filtered marker", i, entry.Level)
		}
		if !entry.Tags.ContainsAll(logentry.NewTags("relay")) {
			t.Errorf("entry %d tags = %v", i, entry.Tags)
		}
		if i > 0 && entry.Time.Compare(entries[i-1].Time) <= 0 {
			t.Errorf("entry %d time %v not after %v", i, entry.Time, entries[i-1].Time)
		}
	}
}

func TestRelayAppliesLocalFilters(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelInfo)
	sender := f.connect(t)
	child := f.child(sender)

	child.Log(logentry.LevelTrace, "too quiet")
	child.Log(logentry.LevelWarn, "kept")
	child.OpenGroup(logentry.LevelTrace, "quiet group")
	child.Log(logentry.LevelError, "inside quiet group")
	child.EndGroup("hidden")
	child.OpenGroup(logentry.LevelInfo, "loud group")
	child.Log(logentry.LevelInfo, "inside loud group")
	child.EndGroup("shown")
	sender.Close()

	if status := f.receiver.WaitEnd(false); status != StatusNormal {
		t.Fatalf("WaitEnd = %v, want normal", status)
	}
	want := strings.Join([]string{
		"line warn kept",
		"line error inside quiet group",
		"open info loud group",
		"line info inside loud group",
		"close shown",
	}, "\n")
	if got := describe(f.recorded.snapshot()); got != want {
		t.Errorf("received:\n%s\nwant:\n%s", got, want)
	}
	if depth := f.parent.Depth(); depth != 0 {
		t.Errorf("parent depth after relay = %d, want 0", depth)
	}
}

func TestRelayMissingEndMarker(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelNone)
	sender := f.connect(t)
	child := f.child(sender)

	child.Log(logentry.LevelInfo, "before crash")
	child.Log(logentry.LevelInfo, "last words")
	if err := sender.Abandon(); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	if status := f.receiver.WaitEnd(false); status != StatusMissingEndMarker {
		t.Fatalf("WaitEnd = %v, want missing-end-marker", status)
	}
	if got := len(f.recorded.snapshot()); got != 2 {
		t.Errorf("received %d entries, want 2", got)
	}
}

func TestRelayMalformedData(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelNone)
	file, err := pipe.Dial(f.receiver.ConnectionName())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	f.receiver.ReleaseClientHandle()
	if err := logstream.WriteHeader(file, logentry.CurrentVersion); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := file.Write([]byte{0xFF, 0x01, 0x02}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	file.Close()

	if status := f.receiver.WaitEnd(false); status != StatusError {
		t.Fatalf("WaitEnd = %v, want error", status)
	}
	entries := f.recorded.snapshot()
	if len(entries) != 1 {
		t.Fatalf("received %d entries, want the fatal diagnostic only", len(entries))
	}
	diagnostic := entries[0]
	if diagnostic.Level.Severity() != logentry.LevelFatal {
		t.Errorf("diagnostic level = %v, want fatal", diagnostic.Level)
	}
	if diagnostic.Exception == nil || !strings.Contains(diagnostic.Exception.Message, "malformed") {
		t.Errorf("diagnostic exception = %+v", diagnostic.Exception)
	}
}

func TestRelayRejectsCorruptedLevel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelFatal)
	file, err := pipe.Dial(f.receiver.ConnectionName())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	f.receiver.ReleaseClientHandle()
	data, err := logentry.Marshal(&logentry.Entry{
		Kind:  logentry.KindLine,
		Level: logentry.LevelInfo,
		Text:  "corrupted",
		Time:  logentry.Timestamp{Time: epoch},
	}, logentry.CurrentVersion)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Discriminant, 8 timestamp bytes and the uniquifier precede the
	// level byte, which now claims Trace, Info and Fatal at once.
	data[10] = byte(logentry.LevelTrace | logentry.LevelInfo | logentry.LevelFatal)
	if err := logstream.WriteHeader(file, logentry.CurrentVersion); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := file.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	file.Close()

	if status := f.receiver.WaitEnd(false); status != StatusError {
		t.Fatalf("WaitEnd = %v, want error", status)
	}
	for _, entry := range f.recorded.snapshot() {
		if entry.Text == "corrupted" {
			t.Errorf("forwarded corrupted entry with level %v", entry.Level)
		}
	}
}

func TestRelayUnsupportedVersion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelNone)
	file, err := pipe.Dial(f.receiver.ConnectionName())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	f.receiver.ReleaseClientHandle()
	file.Write([]byte{0x63, 0x00, 0x00, 0x00, 0x00})
	file.Close()

	if status := f.receiver.WaitEnd(false); status != StatusError {
		t.Fatalf("WaitEnd = %v, want error", status)
	}
}

func TestWaitEndBoundedWhenPeerFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelNone)
	f.connect(t)

	if status := f.receiver.Status(); status != StatusRunning {
		t.Fatalf("Status = %v before any data, want running", status)
	}

	statuses := make(chan Status, 1)
	go func() { statuses <- f.receiver.WaitEnd(true) }()
	f.fake.WaitForTimers(1)
	f.fake.Advance(DefaultFailureWait)

	status := testutil.RequireReceive(t, statuses, 5*time.Second, "waiting for bounded WaitEnd")
	if status != StatusError {
		t.Errorf("WaitEnd(true) = %v, want error", status)
	}
	if err := f.receiver.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	testutil.RequireClosed(t, f.receiver.Done(), 5*time.Second, "relay worker exit")
	if status := f.receiver.Status(); status != StatusError {
		t.Errorf("Status after Close = %v, want error", status)
	}
	if got := len(f.recorded.snapshot()); got != 0 {
		t.Errorf("Close produced %d diagnostic entries, want none", got)
	}
}

func TestWaitEndAfterCleanEndIgnoresFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelNone)
	sender := f.connect(t)
	sender.Close()
	testutil.RequireClosed(t, f.receiver.Done(), 5*time.Second, "relay worker exit")

	if status := f.receiver.WaitEnd(true); status != StatusNormal {
		t.Errorf("WaitEnd(true) after goodbye = %v, want normal", status)
	}
}

func TestSenderRejectsWriteAfterClose(t *testing.T) {
	t.Parallel()
	f := newFixture(t, logentry.LevelNone)
	sender := f.connect(t)
	sender.Close()
	err := sender.Write(&logentry.Entry{Kind: logentry.KindLine, Level: logentry.LevelInfo, Text: "late"})
	if err == nil {
		t.Error("Write after Close succeeded")
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDialFromEnvironmentUnset(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	if _, err := DialFromEnvironment(SenderOptions{}); !errors.Is(err, ErrNoPipe) {
		t.Errorf("DialFromEnvironment error = %v, want ErrNoPipe", err)
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()
	for status, want := range map[Status]string{
		StatusRunning:          "running",
		StatusNormal:           "normal",
		StatusMissingEndMarker: "missing-end-marker",
		StatusError:            "error",
		Status(9):              "status(9)",
	} {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(status), got, want)
		}
	}
}
