// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/ckmon/lib/logentry"
)

// SlogClient mirrors a monitor into a *slog.Logger. Debug maps below
// slog's debug level and Fatal above its error level.
type SlogClient struct {
	logger *slog.Logger
}

// NewSlogClient returns a client writing to logger.
func NewSlogClient(logger *slog.Logger) *SlogClient {
	return &SlogClient{logger: logger}
}

// SlogLevel maps a severity onto slog levels.
func SlogLevel(level logentry.Level) slog.Level {
	switch level.Severity() {
	case logentry.LevelDebug:
		return slog.LevelDebug - 4
	case logentry.LevelTrace:
		return slog.LevelDebug
	case logentry.LevelInfo:
		return slog.LevelInfo
	case logentry.LevelWarn:
		return slog.LevelWarn
	case logentry.LevelError:
		return slog.LevelError
	case logentry.LevelFatal:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

func (client *SlogClient) OnAutoTagsChanged(tags logentry.Tags) error {
	client.logger.Debug("auto tags changed", "tags", tags.String())
	return nil
}

func (client *SlogClient) OnOpenGroup(group Group) error {
	client.log(group.Data, group, "group", true)
	return nil
}

func (client *SlogClient) OnGroupClosed(group Group, conclusions []string, stamp logentry.Timestamp) error {
	attributes := []slog.Attr{
		slog.String("monitor", group.MonitorID),
		slog.Int("depth", group.Depth),
		slog.String("group", group.Data.Text),
		slog.String("time", stamp.String()),
	}
	if len(conclusions) > 0 {
		attributes = append(attributes, slog.Any("conclusions", conclusions))
	}
	client.logger.LogAttrs(context.Background(), SlogLevel(group.Data.Level), "group closed", attributes...)
	return nil
}

func (client *SlogClient) OnUnfilteredLog(group Group, data Data) error {
	client.log(data, group, "line", false)
	return nil
}

func (client *SlogClient) log(data Data, group Group, kind string, opened bool) {
	attributes := []slog.Attr{
		slog.String("monitor", group.MonitorID),
		slog.Int("depth", group.Depth),
		slog.String("kind", kind),
		slog.String("time", data.Time.String()),
	}
	if !data.Tags.IsEmpty() {
		attributes = append(attributes, slog.String("tags", data.Tags.String()))
	}
	if data.FileName != "" {
		attributes = append(attributes, slog.String("file", data.FileName), slog.Int("line", data.LineNumber))
	}
	if data.Exception != nil {
		attributes = append(attributes,
			slog.String("exception", data.Exception.Message),
			slog.String("exception_type", data.Exception.TypeName))
	}
	message := data.Text
	if opened {
		message = "group opened: " + message
	}
	client.logger.LogAttrs(context.Background(), SlogLevel(data.Level), message, attributes...)
}
