// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/ckmon/lib/config"
	"github.com/bureau-foundation/ckmon/lib/multilog"
)

// sourceParams are the flags shared by every command reading files.
type sourceParams struct {
	Config           string `flag:"config" desc:"configuration file (default: $CKMON_CONFIG)"`
	IndexDir         string `flag:"index-dir" desc:"offset index cache directory (default: index.directory from config)"`
	IncludeTruncated bool   `flag:"include-truncated" desc:"include the readable part of damaged files"`
}

// openFiles tracks paths in a new reader. Unreadable files are logged
// but tracked all the same, so that callers can report them.
func (params *sourceParams) openFiles(paths []string, logger *slog.Logger) (*multilog.Reader, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one log file is required")
	}
	indexDirectory := params.IndexDir
	if indexDirectory == "" {
		cfg, err := config.LoadOptional(params.Config)
		if err != nil {
			return nil, err
		}
		indexDirectory = cfg.Index.Directory
	}

	reader := multilog.NewReader(multilog.Options{
		IndexDirectory:   indexDirectory,
		IncludeTruncated: params.IncludeTruncated,
		Logger:           logger,
	})
	for _, result := range reader.Add(paths...) {
		if !result.File.IsValid() {
			logger.Warn("log file is damaged", "path", result.File.Path, "error", result.File.Err)
		}
	}
	return reader, nil
}
