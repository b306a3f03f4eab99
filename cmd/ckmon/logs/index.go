// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/lib/config"
	"github.com/bureau-foundation/ckmon/lib/logfile"
)

type indexParams struct {
	Config   string `flag:"config" desc:"configuration file (default: $CKMON_CONFIG)"`
	IndexDir string `flag:"index-dir" desc:"offset index cache directory (default: index.directory from config)"`
	Diagnose bool   `flag:"diagnose" desc:"print each cached index in CBOR diagnostic notation"`
}

// IndexCommand returns the "index" command.
func IndexCommand(logger *slog.Logger) *cli.Command {
	var params indexParams
	return &cli.Command{
		Name:    "index",
		Summary: "Build or refresh the offset index of log files",
		Description: `Validate log files and store their entry offsets in the index cache,
so that later reads skip the validation pass. A cached index is
reused while the file's size, modification time and content
fingerprint are unchanged; otherwise it is rebuilt.`,
		Usage: "ckmon index [flags] <file>...",
		Examples: []cli.Example{
			{
				Description: "Index a directory of log files",
				Command:     "ckmon index --index-dir ~/.cache/ckmon logs/*.ckmon",
			},
			{
				Description: "Show what the cache holds for one file",
				Command:     "ckmon index --diagnose app.ckmon",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one log file is required")
			}
			directory := params.IndexDir
			if directory == "" {
				cfg, err := config.LoadOptional(params.Config)
				if err != nil {
					return err
				}
				directory = cfg.Index.Directory
			}
			if directory == "" {
				return fmt.Errorf("no index directory: pass --index-dir or set index.directory in the configuration")
			}
			return buildIndexes(os.Stdout, directory, args, params.Diagnose, logger)
		},
	}
}

func buildIndexes(w io.Writer, directory string, paths []string, diagnose bool, logger *slog.Logger) error {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	for _, path := range paths {
		file, hit, err := logfile.OpenCached(path, directory)
		if err != nil {
			logger.Warn("index cache unavailable", "path", file.Path, "error", err)
		}
		state := "built"
		if hit {
			state = "cached"
		}
		if !file.IsValid() {
			state += ", damaged"
		}
		fmt.Fprintf(w, "%-14s %s (%d entries)\n", state, file.Path, file.EntryCount())
		if diagnose {
			diagnostic, err := logfile.DiagnoseIndex(directory, file.Path)
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Fprintln(w, "  (no cached index)")
			case err != nil:
				return err
			default:
				fmt.Fprintf(w, "  %s\n", diagnostic)
			}
		}
	}
	return nil
}
