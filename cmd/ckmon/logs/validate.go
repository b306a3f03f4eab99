// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/lib/logfile"
)

type validateParams struct {
	cli.JSONOutput
	sourceParams
}

// fileReport is the validation outcome of one file.
type fileReport struct {
	Path        string   `json:"path"`
	Valid       bool     `json:"valid"`
	Version     int      `json:"version,omitempty"`
	Compression string   `json:"compression,omitempty"`
	Entries     int      `json:"entries"`
	Groups      int      `json:"groups"`
	Multicast   bool     `json:"multicast"`
	Monitors    []string `json:"monitors,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func newFileReport(file *logfile.RawLogFile) fileReport {
	report := fileReport{
		Path:      file.Path,
		Valid:     file.IsValid(),
		Entries:   file.EntryCount(),
		Groups:    file.OpenGroupCount,
		Multicast: file.Multicast,
		Monitors:  file.MonitorIDs,
	}
	if file.Readable() {
		report.Version = file.Version
		report.Compression = file.Compression.String()
	}
	if file.Err != nil {
		report.Error = file.Err.Error()
	}
	return report
}

// ValidateCommand returns the "validate" command.
func ValidateCommand(logger *slog.Logger) *cli.Command {
	var params validateParams
	return &cli.Command{
		Name:    "validate",
		Summary: "Check that log files decode up to their end marker",
		Description: `Decode every entry of every file and report the files that are
damaged: an unsupported version, malformed bytes, or a missing end
marker left by a writer that did not close the file.

Exits with status 1 when any file is damaged.`,
		Usage: "ckmon validate [flags] <file>...",
		Examples: []cli.Example{
			{
				Description: "Check a directory of log files",
				Command:     "ckmon validate logs/*.ckmon",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			reader, err := params.openFiles(args, logger)
			if err != nil {
				return err
			}
			var reports []fileReport
			for _, file := range reader.Files() {
				reports = append(reports, newFileReport(file))
			}
			return validate(os.Stdout, reports, &params.JSONOutput)
		},
	}
}

func validate(w io.Writer, reports []fileReport, output *cli.JSONOutput) error {
	unreadable := 0
	for _, report := range reports {
		if !report.Valid {
			unreadable++
		}
	}
	if done, err := output.EmitJSON(w, reports); done {
		if err != nil {
			return err
		}
	} else {
		for _, report := range reports {
			if report.Valid {
				fmt.Fprintf(w, "ok    %s (version %d, %s, %d entries)\n",
					report.Path, report.Version, report.Compression, report.Entries)
			} else {
				fmt.Fprintf(w, "FAIL  %s: %s\n", report.Path, report.Error)
			}
		}
		if unreadable > 0 {
			fmt.Fprintf(w, "%d of %d files unreadable\n", unreadable, len(reports))
		}
	}
	if unreadable > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
