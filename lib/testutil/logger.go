// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CapturingLogger returns a logger that records every record as text,
// and the buffer it records into. Use it to assert that a component
// reported a condition without depending on the exact layout.
func CapturingLogger() (*slog.Logger, *LogBuffer) {
	buffer := &LogBuffer{}
	return slog.New(slog.NewTextHandler(buffer, &slog.HandlerOptions{Level: slog.LevelDebug})), buffer
}

// LogBuffer is a goroutine-safe text sink.
type LogBuffer struct {
	mu      sync.Mutex
	builder strings.Builder
}

func (buffer *LogBuffer) Write(p []byte) (int, error) {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return buffer.builder.Write(p)
}

// String returns everything logged so far.
func (buffer *LogBuffer) String() string {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return buffer.builder.String()
}

// Contains reports whether the logged text contains substring.
func (buffer *LogBuffer) Contains(substring string) bool {
	return strings.Contains(buffer.String(), substring)
}
