// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay implements "ckmon relay", which runs a command with a
// log pipe attached and replays what the command logs, and "ckmon
// emit", which logs into the pipe of an enclosing relay.
//
// The relay passes the write end of the pipe as the child's first
// extra file (descriptor 3) and names it in CKMON_PIPE. The child's
// stdio is passed through and SIGINT, SIGTERM, SIGHUP and SIGQUIT are
// forwarded to it. The relay exits with the child's exit code.
package relay
