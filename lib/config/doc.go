// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the ckmon tools.
//
// Configuration is loaded from a single file specified by either the
// CKMON_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. Commands that can run unconfigured use
// [LoadOptional], which falls back to [Default] only when neither is
// given.
//
// Files are YAML; a .json or .jsonc extension selects JSON with
// comments and trailing commas. ${HOME} and ${VAR:-default} patterns
// are expanded in directory fields after loading.
package config
