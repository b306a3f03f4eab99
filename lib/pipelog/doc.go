// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipelog relays monitor activity from a child process to its
// parent over an exclusive pipe.
//
// The protocol is a plain log stream: the 4-byte format version, one
// encoded entry per event (no multicast envelope), and the terminator
// byte as goodbye. There is no acknowledgement.
//
// The parent creates a [Receiver] around a local monitor.Destination,
// hands [Receiver.ClientFile] to the child and releases its own copy:
//
//	receiver, err := pipelog.NewReceiver(destination, pipelog.ReceiverOptions{Logger: logger})
//	cmd.ExtraFiles = []*os.File{receiver.ClientFile()}
//	cmd.Env = append(os.Environ(), pipelog.EnvironmentVariable+"="+pipe.ChildName(0))
//	cmd.Start()
//	receiver.ReleaseClientHandle()
//	childErr := cmd.Wait()
//	status := receiver.WaitEnd(childErr != nil)
//	receiver.Close()
//
// A dedicated goroutine decodes the stream and replays each entry into
// the destination, in order, through the destination's own filters.
// The final [Status] distinguishes a clean goodbye, a stream that
// stopped between two entries, and everything else.
//
// The child attaches a [Sender] to its monitor; closing the sender
// writes the goodbye byte.
package pipelog
