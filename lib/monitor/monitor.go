// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/ckmon/lib/clock"
	"github.com/bureau-foundation/ckmon/lib/logentry"
)

// Data is a line or an opened group as handed to a Destination or a
// Client.
type Data struct {
	Level      logentry.Level
	Tags       logentry.Tags
	Text       string
	Time       logentry.Timestamp
	FileName   string
	LineNumber int
	Exception  *logentry.ExceptionData
}

// DataFromEntry extracts the Data of a line or opened group entry.
func DataFromEntry(entry *logentry.Entry) Data {
	return Data{
		Level:      entry.Level,
		Tags:       entry.Tags,
		Text:       entry.Text,
		Time:       entry.Time,
		FileName:   entry.FileName,
		LineNumber: entry.LineNumber,
		Exception:  entry.Exception,
	}
}

// Entry builds the entry of the given kind carrying data.
func (data Data) Entry(kind logentry.Kind) *logentry.Entry {
	return &logentry.Entry{
		Kind:       kind,
		Level:      data.Level,
		Tags:       data.Tags,
		Text:       data.Text,
		Time:       data.Time,
		FileName:   data.FileName,
		LineNumber: data.LineNumber,
		Exception:  data.Exception,
	}
}

// Group describes where an entry is emitted: the monitor, the nesting
// depth and the innermost open group. The root group has depth 0 and
// a zero Data.
type Group struct {
	MonitorID string
	Depth     int
	Data      Data
}

// Destination receives pre-filtered entries.
type Destination interface {
	// ShouldLog reports whether an entry with level and tags would be
	// recorded, and the tags it would be recorded with.
	ShouldLog(level logentry.Level, tags logentry.Tags) (logentry.Tags, bool)

	// UnfilteredLog records a line without applying any filter.
	UnfilteredLog(data Data)

	// UnfilteredOpenGroup opens a group without applying any filter.
	UnfilteredOpenGroup(data Data)

	// CloseGroup closes the innermost open group. A zero stamp asks
	// the destination to stamp the close itself.
	CloseGroup(conclusions []string, stamp logentry.Timestamp)
}

// Client observes a Monitor.
type Client interface {
	OnAutoTagsChanged(tags logentry.Tags) error

	// OnOpenGroup is called with the group just opened.
	OnOpenGroup(group Group) error

	// OnGroupClosed is called with the group just closed.
	OnGroupClosed(group Group, conclusions []string, stamp logentry.Timestamp) error

	// OnUnfilteredLog is called with the innermost open group and the
	// line.
	OnUnfilteredLog(group Group, data Data) error
}

// TagFilter overrides the minimal level for entries carrying all of
// Tags.
type TagFilter struct {
	Tags  logentry.Tags
	Level logentry.Level
}

// Options configures a Monitor.
type Options struct {
	// ID identifies the monitor across files and processes. Empty
	// generates a random UUID.
	ID string

	// MinimalLevel is the lowest severity recorded. Zero records
	// everything.
	MinimalLevel logentry.Level

	// TagFilters are tried in order; the first whose tags are all
	// present sets the minimal level for the entry.
	TagFilters []TagFilter

	// AutoTags are added to every entry.
	AutoTags logentry.Tags

	Clock  clock.Clock
	Logger *slog.Logger
}

// Monitor is a structured logger. It is safe for concurrent use;
// clients are called with the monitor's lock held, in emission order.
type Monitor struct {
	mu           sync.Mutex
	id           string
	clock        clock.Clock
	logger       *slog.Logger
	minimalLevel logentry.Level
	tagFilters   []TagFilter
	autoTags     logentry.Tags
	last         logentry.Timestamp

	// groups holds every open group, including the ones rejected by
	// the filters so that closes stay balanced.
	groups  []openGroup
	clients []Client
}

type openGroup struct {
	group    Group
	rejected bool
}

// New creates a Monitor.
func New(options Options) *Monitor {
	id := options.ID
	if id == "" {
		id = uuid.NewString()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		id:           id,
		clock:        options.Clock,
		logger:       options.Logger,
		minimalLevel: options.MinimalLevel.Severity(),
		tagFilters:   slices.Clone(options.TagFilters),
		autoTags:     options.AutoTags,
	}
}

// ID returns the monitor id.
func (m *Monitor) ID() string { return m.id }

// AddClient attaches client. Attaching the same client twice is a
// no-op.
func (m *Monitor) AddClient(client Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.clients, client) {
		m.clients = append(m.clients, client)
	}
}

// RemoveClient detaches client.
func (m *Monitor) RemoveClient(client Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = slices.DeleteFunc(m.clients, func(c Client) bool { return c == client })
}

// Clients returns the attached clients.
func (m *Monitor) Clients() []Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.clients)
}

// SetMinimalLevel changes the lowest recorded severity.
func (m *Monitor) SetMinimalLevel(level logentry.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minimalLevel = level.Severity()
}

// SetAutoTags replaces the automatic tags and notifies the clients.
func (m *Monitor) SetAutoTags(tags logentry.Tags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tags == m.autoTags {
		return
	}
	m.autoTags = tags
	m.notify("auto tags changed", func(client Client) error {
		return client.OnAutoTagsChanged(tags)
	})
}

// Depth returns the number of open groups, rejected ones included.
func (m *Monitor) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.groups)
}

// ShouldLog implements Destination.
func (m *Monitor) ShouldLog(level logentry.Level, tags logentry.Tags) (logentry.Tags, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldLogLocked(level, tags)
}

func (m *Monitor) shouldLogLocked(level logentry.Level, tags logentry.Tags) (logentry.Tags, bool) {
	final := tags.Union(m.autoTags)
	threshold := m.minimalLevel
	for _, filter := range m.tagFilters {
		if final.ContainsAll(filter.Tags) {
			threshold = filter.Level.Severity()
			break
		}
	}
	return final, level.Severity().AtLeast(threshold)
}

// UnfilteredLog implements Destination. Data without a timestamp is
// stamped by the monitor.
func (m *Monitor) UnfilteredLog(data Data) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data.Time = m.stampLocked(data.Time)
	group := m.currentLocked()
	m.notify("log", func(client Client) error {
		return client.OnUnfilteredLog(group, data)
	})
}

// UnfilteredOpenGroup implements Destination.
func (m *Monitor) UnfilteredOpenGroup(data Data) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLocked(data, false)
}

func (m *Monitor) openLocked(data Data, rejected bool) {
	if !rejected {
		data.Time = m.stampLocked(data.Time)
	}
	group := Group{MonitorID: m.id, Depth: m.emittedDepthLocked() + 1, Data: data}
	m.groups = append(m.groups, openGroup{group: group, rejected: rejected})
	if rejected {
		return
	}
	m.notify("open group", func(client Client) error {
		return client.OnOpenGroup(group)
	})
}

// CloseGroup implements Destination. Closing with no open group is
// ignored.
func (m *Monitor) CloseGroup(conclusions []string, stamp logentry.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.groups) == 0 {
		m.logger.Debug("close without open group ignored", "monitor", m.id)
		return
	}
	closed := m.groups[len(m.groups)-1]
	m.groups = m.groups[:len(m.groups)-1]
	if closed.rejected {
		return
	}
	stamp = m.stampLocked(stamp)
	m.notify("close group", func(client Client) error {
		return client.OnGroupClosed(closed.group, conclusions, stamp)
	})
}

// Log emits a line when level and tags pass the filters.
func (m *Monitor) Log(level logentry.Level, text string, tags ...string) {
	m.LogData(Data{Level: level, Tags: logentry.NewTags(tags...), Text: text})
}

// LogError emits a line carrying the exception chain of err.
func (m *Monitor) LogError(level logentry.Level, text string, err error, tags ...string) {
	m.LogData(Data{
		Level:     level,
		Tags:      logentry.NewTags(tags...),
		Text:      text,
		Exception: logentry.NewExceptionData(err),
	})
}

// LogData emits data as a line when it passes the filters.
func (m *Monitor) LogData(data Data) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags, ok := m.shouldLogLocked(data.Level, data.Tags)
	if !ok {
		return
	}
	data.Tags = tags
	data.Time = m.stampLocked(data.Time)
	group := m.currentLocked()
	m.notify("log", func(client Client) error {
		return client.OnUnfilteredLog(group, data)
	})
}

// OpenGroup opens a group. A group rejected by the filters is still
// tracked so that the matching EndGroup stays balanced, but nothing is
// emitted for it or for its close. Returns whether the group was
// emitted.
func (m *Monitor) OpenGroup(level logentry.Level, text string, tags ...string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	final, ok := m.shouldLogLocked(level, logentry.NewTags(tags...))
	m.openLocked(Data{Level: level, Tags: final, Text: text}, !ok)
	return ok
}

// EndGroup closes the innermost group, stamping the close now.
func (m *Monitor) EndGroup(conclusions ...string) {
	m.CloseGroup(conclusions, logentry.Timestamp{})
}

// Close closes every open group.
func (m *Monitor) Close() {
	for m.Depth() > 0 {
		m.EndGroup()
	}
}

// stampLocked returns stamp when it is set, otherwise the next
// strictly increasing stamp. Either way the monitor never issues a
// stamp at or before one it has already seen.
func (m *Monitor) stampLocked(stamp logentry.Timestamp) logentry.Timestamp {
	if stamp.IsZero() {
		m.last = m.last.Next(m.clock.Now())
		return m.last
	}
	if stamp.Compare(m.last) > 0 {
		m.last = stamp
	}
	return stamp
}

func (m *Monitor) currentLocked() Group {
	for i := len(m.groups) - 1; i >= 0; i-- {
		if !m.groups[i].rejected {
			return m.groups[i].group
		}
	}
	return Group{MonitorID: m.id}
}

// emittedDepthLocked counts the open groups clients have seen.
func (m *Monitor) emittedDepthLocked() int {
	depth := 0
	for _, open := range m.groups {
		if !open.rejected {
			depth++
		}
	}
	return depth
}

func (m *Monitor) notify(operation string, call func(Client) error) {
	var failed []Client
	for _, client := range m.clients {
		if err := call(client); err != nil {
			m.logger.Error("monitor client failed, detaching",
				"monitor", m.id,
				"operation", operation,
				"client", fmt.Sprintf("%T", client),
				"error", err,
			)
			failed = append(failed, client)
		}
	}
	if len(failed) > 0 {
		m.clients = slices.DeleteFunc(m.clients, func(c Client) bool {
			return slices.Contains(failed, c)
		})
	}
}
