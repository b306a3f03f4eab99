// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipe provides the exclusive byte-stream transport between a
// parent and a child process: an anonymous OS pipe whose write end is
// handed to the child out of band.
//
// The server owns the read end. Its connection name has the form
// "fd:N", the descriptor number of the write end in the server
// process. A child started with the write end in exec.Cmd.ExtraFiles
// sees it under [ChildName]; a server created inheritable leaves the
// descriptor open across exec so that the child sees it under
// [Server.Name].
//
// Once the child holds its copy, the server calls
// [Server.ReleaseClientHandle] so that the read end reports end of
// stream as soon as the child's copy is closed, whether by a clean
// exit or a crash.
package pipe
