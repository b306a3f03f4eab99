// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipelog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/ckmon/lib/clock"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logstream"
	"github.com/bureau-foundation/ckmon/lib/monitor"
	"github.com/bureau-foundation/ckmon/lib/pipe"
)

// DefaultFailureWait bounds WaitEnd once the peer is known to have
// failed.
const DefaultFailureWait = 500 * time.Millisecond

// Status is the outcome of a relay.
type Status int

const (
	// StatusRunning means the relay has not ended yet.
	StatusRunning Status = iota

	// StatusNormal means the sender said goodbye.
	StatusNormal

	// StatusMissingEndMarker means the stream ended between two
	// entries without the goodbye byte.
	StatusMissingEndMarker

	// StatusError covers everything else: a stream cut inside an
	// entry, malformed data, an unsupported version, a transport
	// failure, or a failed peer that did not finish in time.
	StatusError
)

func (status Status) String() string {
	switch status {
	case StatusRunning:
		return "running"
	case StatusNormal:
		return "normal"
	case StatusMissingEndMarker:
		return "missing-end-marker"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(status))
	}
}

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	// Inheritable leaves the client end open across exec under
	// ConnectionName.
	Inheritable bool

	// FailureWait bounds WaitEnd(true). Zero means DefaultFailureWait.
	FailureWait time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Receiver is the server end of a relay.
type Receiver struct {
	server      *pipe.Server
	destination monitor.Destination
	clock       clock.Clock
	logger      *slog.Logger
	failureWait time.Duration

	// done is closed by the worker after it stored workerStatus.
	done         chan struct{}
	workerStatus Status

	mu     sync.Mutex
	forced Status

	// closing suppresses failure reporting for the read error that
	// Close itself provokes.
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewReceiver creates the pipe and starts relaying into destination.
// From then on only the relay may emit into destination.
func NewReceiver(destination monitor.Destination, options ReceiverOptions) (*Receiver, error) {
	if options.FailureWait <= 0 {
		options.FailureWait = DefaultFailureWait
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	server, err := pipe.NewServer(options.Inheritable)
	if err != nil {
		return nil, err
	}
	receiver := &Receiver{
		server:      server,
		destination: destination,
		clock:       options.Clock,
		logger:      options.Logger.With("pipe", server.Name()),
		failureWait: options.FailureWait,
		done:        make(chan struct{}),
	}
	go receiver.run()
	return receiver, nil
}

// ConnectionName returns the name a sender in this process, or in a
// child inheriting the pipe, passes to NewSender.
func (receiver *Receiver) ConnectionName() string { return receiver.server.Name() }

// ClientFile returns the write end for exec.Cmd.ExtraFiles, or nil
// once released.
func (receiver *Receiver) ClientFile() *os.File { return receiver.server.ClientFile() }

// ReleaseClientHandle closes the receiver's copy of the write end, so
// that the relay ends when the sender's copy is closed.
func (receiver *Receiver) ReleaseClientHandle() error {
	return receiver.server.ReleaseClientHandle()
}

// Done is closed when the relay goroutine has finished.
func (receiver *Receiver) Done() <-chan struct{} { return receiver.done }

// Status returns the current status.
func (receiver *Receiver) Status() Status {
	receiver.mu.Lock()
	forced := receiver.forced
	receiver.mu.Unlock()
	if forced != StatusRunning {
		return forced
	}
	select {
	case <-receiver.done:
		return receiver.workerStatus
	default:
		return StatusRunning
	}
}

// WaitEnd waits for the relay to end and returns its status. When
// otherFailed reports that the sending process already failed, the
// wait is bounded by the failure wait, after which the status is
// forced to StatusError.
func (receiver *Receiver) WaitEnd(otherFailed bool) Status {
	if !otherFailed {
		<-receiver.done
		return receiver.Status()
	}
	select {
	case <-receiver.done:
		return receiver.Status()
	case <-receiver.clock.After(receiver.failureWait):
	}

	receiver.mu.Lock()
	if receiver.forced == StatusRunning {
		receiver.forced = StatusError
	}
	receiver.mu.Unlock()
	receiver.logger.Error("sender failed and the relay did not end",
		"wait", receiver.failureWait)
	return receiver.Status()
}

// Close releases the pipe. A relay still running is stopped by
// closing the read end, and joined.
func (receiver *Receiver) Close() error {
	receiver.closeOnce.Do(func() {
		releaseErr := receiver.server.ReleaseClientHandle()
		select {
		case <-receiver.done:
		default:
			receiver.closing.Store(true)
			receiver.server.CloseReader()
		}
		<-receiver.done
		receiver.closeErr = errors.Join(releaseErr, receiver.server.Close())
	})
	return receiver.closeErr
}

func (receiver *Receiver) run() {
	defer close(receiver.done)
	receiver.workerStatus = receiver.relay()
	receiver.logger.Debug("relay ended", "status", receiver.workerStatus)
}

func (receiver *Receiver) relay() Status {
	stream, err := logstream.Open(receiver.server.Reader())
	if err != nil {
		receiver.fail(fmt.Errorf("reading relay header: %w", err))
		return StatusError
	}
	defer stream.Close()

	// suppressed tracks, for every group opened by the sender, whether
	// the destination rejected it, so that its close is dropped too.
	var suppressed []bool
	for stream.Next() {
		entry := stream.Entry()
		switch entry.Kind {
		case logentry.KindLine:
			if data, ok := receiver.admit(entry); ok {
				receiver.destination.UnfilteredLog(data)
			}
		case logentry.KindOpenGroup:
			data, ok := receiver.admit(entry)
			suppressed = append(suppressed, !ok)
			if ok {
				receiver.destination.UnfilteredOpenGroup(data)
			}
		case logentry.KindCloseGroup:
			if depth := len(suppressed); depth > 0 {
				rejected := suppressed[depth-1]
				suppressed = suppressed[:depth-1]
				if rejected {
					continue
				}
			}
			receiver.destination.CloseGroup(entry.Conclusions, entry.Time)
		}
	}

	if !stream.BadEndOfStream() {
		return StatusNormal
	}
	err = stream.Err()
	if errors.Is(err, logentry.ErrMissingTerminator) && !receiver.closing.Load() {
		receiver.logger.Warn("relay ended without goodbye")
		return StatusMissingEndMarker
	}
	receiver.fail(err)
	return StatusError
}

// admit runs the destination's filters on a relayed line or group.
func (receiver *Receiver) admit(entry *logentry.Entry) (monitor.Data, bool) {
	tags, ok := receiver.destination.ShouldLog(entry.Level, entry.Tags)
	if !ok {
		return monitor.Data{}, false
	}
	data := monitor.DataFromEntry(entry)
	data.Tags = tags
	data.Level = entry.Level | logentry.LevelIsFiltered
	return data, true
}

// fail reports a broken relay both locally and into the destination.
func (receiver *Receiver) fail(err error) {
	if receiver.closing.Load() {
		receiver.logger.Debug("relay stopped by close", "error", err)
		return
	}
	receiver.logger.Error("relay failed", "error", err)
	receiver.destination.UnfilteredLog(monitor.Data{
		Level:     logentry.LevelFatal | logentry.LevelIsFiltered,
		Text:      "While receiving pipe log data.",
		Exception: logentry.NewExceptionData(err),
	})
}
