// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logs implements the ckmon commands that read log files:
// dump, validate, activity and index.
//
// Every command takes any number of files, tracks them in one
// multilog.Reader, and optionally caches validation results in an
// index directory (--index-dir, or index.directory in the
// configuration file).
package logs
