// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/lib/multilog"
)

type activityParams struct {
	cli.JSONOutput
	sourceParams
}

// monitorSummary is one row of the activity listing.
type monitorSummary struct {
	Monitor           string   `json:"monitor"`
	First             string   `json:"first"`
	Last              string   `json:"last"`
	Entries           int      `json:"entries"`
	Missing           int      `json:"missing"`
	Duplicates        int      `json:"duplicates"`
	InconsistentLinks int      `json:"inconsistent_links"`
	Files             []string `json:"files"`
}

// ActivityCommand returns the "activity" command.
func ActivityCommand(logger *slog.Logger) *cli.Command {
	var params activityParams
	return &cli.Command{
		Name:    "activity",
		Summary: "List the monitors found in log files",
		Description: `Reconcile log files and list every monitor with the time span it
covers, its entry count, and how much of its timeline was lost or
duplicated across files.`,
		Usage: "ckmon activity [flags] <file>...",
		Examples: []cli.Example{
			{
				Description: "Summarize the monitors of a run",
				Command:     "ckmon activity logs/*.ckmon",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			reader, err := params.openFiles(args, logger)
			if err != nil {
				return err
			}
			return listActivity(os.Stdout, reader.ActivityMap(), &params.JSONOutput, params.IncludeTruncated)
		},
	}
}

func summarize(activityMap *multilog.ActivityMap) []monitorSummary {
	var summaries []monitorSummary
	for _, activity := range activityMap.Monitors() {
		summary := monitorSummary{
			Monitor:           activity.MonitorID,
			First:             formatTime(activity.FirstTime),
			Last:              formatTime(activity.LastTime),
			Entries:           activity.EntryCount,
			Missing:           activity.MissingCount,
			Duplicates:        activity.DuplicateCount,
			InconsistentLinks: activity.InconsistentLinks,
		}
		for _, file := range activity.Files {
			summary.Files = append(summary.Files, file.Path)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func listActivity(w io.Writer, activityMap *multilog.ActivityMap, output *cli.JSONOutput, includeTruncated bool) error {
	summaries := summarize(activityMap)
	if done, err := output.EmitJSON(w, summaries); done {
		return err
	}

	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONITOR\tFIRST\tLAST\tENTRIES\tMISSING\tDUPLICATES\tFILES")
	for _, summary := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			summary.Monitor, summary.First, summary.Last,
			summary.Entries, summary.Missing, summary.Duplicates, len(summary.Files))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, readError := range activityMap.ReadErrors() {
		fmt.Fprintf(w, "read error in %s: %v\n", readError.File.Path, readError.Err)
	}
	if invalid := len(activityMap.InvalidFiles()); invalid > 0 && !includeTruncated {
		fmt.Fprintf(w, "%d damaged files skipped (use --include-truncated to read them)\n", invalid)
	}
	return nil
}
