// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/ckmon/cmd/ckmon/cli"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/multilog"
)

type dumpParams struct {
	sourceParams
	Level   string `flag:"level,l" desc:"lowest severity printed (debug, trace, info, warn, error, fatal)" default:"debug"`
	Monitor string `flag:"monitor,m" desc:"print only this monitor"`
	NoColor bool   `flag:"no-color" desc:"disable colors even on a terminal"`
}

// DumpCommand returns the "dump" command.
func DumpCommand(logger *slog.Logger) *cli.Command {
	var params dumpParams
	return &cli.Command{
		Name:    "dump",
		Summary: "Print the merged timeline of log files",
		Description: `Read log files, reconcile them into one timeline per monitor, and
print every entry with its group nesting.

Files written by several processes or rolled over several files are
merged: entries are ordered by timestamp, identical copies collapse
into one, and entries known to be lost appear as <missing data>.`,
		Usage: "ckmon dump [flags] <file>...",
		Examples: []cli.Example{
			{
				Description: "Print every monitor of a directory",
				Command:     "ckmon dump logs/*.ckmon",
			},
			{
				Description: "Only warnings and above from one monitor",
				Command:     "ckmon dump --level warn --monitor build logs/*.ckmon",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			minimal, err := logentry.ParseLevel(params.Level)
			if err != nil {
				return err
			}
			reader, err := params.openFiles(args, logger)
			if err != nil {
				return err
			}
			return dump(os.Stdout, reader.ActivityMap(), dumpOptions{
				minimal: minimal,
				monitor: params.Monitor,
				color:   !params.NoColor && cli.IsTerminal(),
			})
		},
	}
}

type dumpOptions struct {
	minimal logentry.Level
	monitor string
	color   bool
}

// dump prints every selected monitor of activityMap.
func dump(w io.Writer, activityMap *multilog.ActivityMap, options dumpOptions) error {
	styles := newPalette(options.color)
	printed := 0
	for _, activity := range activityMap.Monitors() {
		if options.monitor != "" && activity.MonitorID != options.monitor {
			continue
		}
		if printed > 0 {
			fmt.Fprintln(w)
		}
		printed++
		if err := dumpMonitor(w, activity, options.minimal, styles); err != nil {
			return err
		}
	}
	if options.monitor != "" && printed == 0 {
		return fmt.Errorf("monitor %q not found", options.monitor)
	}
	return nil
}

func dumpMonitor(w io.Writer, activity *multilog.MonitorActivity, minimal logentry.Level, styles palette) error {
	fmt.Fprintln(w, styles.header.Render(fmt.Sprintf("== %s (%d entries, %d missing, %d files)",
		activity.MonitorID, activity.EntryCount, activity.MissingCount, len(activity.Files))))

	cursor := activity.ReadAllEntries()
	defer cursor.Close()

	var groups nesting
	for cursor.Next() {
		entry := cursor.Entry()
		if entry.Missing {
			// A lost group boundary still moves the nesting, so the
			// entries after it keep their indentation.
			marker := ""
			switch entry.Kind {
			case logentry.KindOpenGroup:
				marker = "+ "
			case logentry.KindCloseGroup:
				marker = "- "
				groups.close()
			}
			fmt.Fprintf(w, "%s %-5s %s%s%s\n", styles.dim.Render(formatTime(entry.Time)), "", indent(groups.depth),
				marker, styles.missing.Render("<missing data>"))
			if entry.Kind == logentry.KindOpenGroup {
				groups.open(true)
			}
			continue
		}
		switch entry.Kind {
		case logentry.KindLine:
			if entry.Level.AtLeast(minimal) {
				writeLine(w, entry.Entry, groups.depth, "", styles)
			}
		case logentry.KindOpenGroup:
			shown := entry.Level.AtLeast(minimal)
			if shown {
				writeLine(w, entry.Entry, groups.depth, "+ ", styles)
			}
			groups.open(shown)
		case logentry.KindCloseGroup:
			if !groups.close() {
				continue
			}
			text := "-"
			if len(entry.Conclusions) > 0 {
				text = "- " + strings.Join(entry.Conclusions, "; ")
			}
			fmt.Fprintf(w, "%s %-5s %s%s\n", styles.dim.Render(formatTime(entry.Time)), "", indent(groups.depth),
				styles.dim.Render(text))
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("reading monitor %s: %w", activity.MonitorID, err)
	}
	return nil
}

func writeLine(w io.Writer, entry *logentry.Entry, depth int, marker string, styles palette) {
	severity := entry.Level.Severity()
	label := strings.ToUpper(severity.String())
	line := fmt.Sprintf("%s %s %s%s%s",
		styles.dim.Render(formatTime(entry.Time)),
		styles.level(severity).Render(fmt.Sprintf("%-5s", label)),
		indent(depth), marker, entry.Text)
	if !entry.Tags.IsEmpty() {
		line += " " + styles.dim.Render("["+strings.Join(entry.Tags.Names(), " ")+"]")
	}
	if entry.FileName != "" {
		line += " " + styles.dim.Render(fmt.Sprintf("(%s:%d)", entry.FileName, entry.LineNumber))
	}
	fmt.Fprintln(w, line)
	writeException(w, entry.Exception, depth+1, styles)
}

func writeException(w io.Writer, exception *logentry.ExceptionData, depth int, styles palette) {
	if exception == nil {
		return
	}
	fmt.Fprintf(w, "%27s%s%s\n", "", indent(depth),
		styles.exception.Render(fmt.Sprintf("! %s: %s", exception.TypeName, exception.Message)))
	writeException(w, exception.Inner, depth+1, styles)
	for _, aggregated := range exception.Aggregated {
		writeException(w, aggregated, depth+1, styles)
	}
}

func formatTime(stamp logentry.Timestamp) string {
	return stamp.Time.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// nesting tracks the open groups of one monitor: whether each was
// shown, and how many shown groups enclose the next entry.
type nesting struct {
	hidden []bool
	depth  int
}

func (n *nesting) open(shown bool) {
	n.hidden = append(n.hidden, !shown)
	if shown {
		n.depth++
	}
}

// close pops the innermost group and reports whether its close is
// shown. A close without a known open is shown at the outer level.
func (n *nesting) close() bool {
	if count := len(n.hidden); count > 0 {
		wasHidden := n.hidden[count-1]
		n.hidden = n.hidden[:count-1]
		if wasHidden {
			return false
		}
	}
	if n.depth > 0 {
		n.depth--
	}
	return true
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}

// palette holds the dump styles. A disabled palette renders text
// unchanged.
type palette struct {
	header    lipgloss.Style
	dim       lipgloss.Style
	missing   lipgloss.Style
	exception lipgloss.Style
	levels    map[logentry.Level]lipgloss.Style
}

func newPalette(enabled bool) palette {
	if !enabled {
		return palette{}
	}
	return palette{
		header:    lipgloss.NewStyle().Bold(true),
		dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		missing:   lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Italic(true),
		exception: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		levels: map[logentry.Level]lipgloss.Style{
			logentry.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
			logentry.LevelTrace: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
			logentry.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
			logentry.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
			logentry.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
			logentry.LevelFatal: lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")).Bold(true),
		},
	}
}

func (styles palette) level(severity logentry.Level) lipgloss.Style {
	return styles.levels[severity]
}
