// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "ckmon",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "dump",
				Run: func(args []string) error {
					called = "dump"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"dump"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "dump" {
		t.Errorf("dispatched to %q, want %q", called, "dump")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "ckmon",
		Subcommands: []*Command{
			{
				Name: "index",
				Subcommands: []*Command{
					{
						Name: "build",
						Run: func(args []string) error {
							called = "index build"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"index", "build", "app.ckmon"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "index build" {
		t.Errorf("dispatched to %q, want %q", called, "index build")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "app.ckmon" {
		t.Errorf("args = %v, want [app.ckmon]", receivedArgs)
	}
}

func TestCommand_Execute_RunFallback(t *testing.T) {
	var receivedArgs []string
	command := &Command{
		Name:        "index",
		Subcommands: []*Command{{Name: "build"}},
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	if err := command.Execute([]string{"app.ckmon"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "app.ckmon" {
		t.Errorf("args = %v, want [app.ckmon]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var level string
	var target string

	command := &Command{
		Name: "dump",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("dump", pflag.ContinueOnError)
			flagSet.StringVar(&level, "level", "trace", "minimal level")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--level", "warn", "app.ckmon"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if level != "warn" {
		t.Errorf("level = %q, want %q", level, "warn")
	}
	if target != "app.ckmon" {
		t.Errorf("target = %q, want %q", target, "app.ckmon")
	}
}

func TestCommand_Execute_Params(t *testing.T) {
	type dumpParams struct {
		JSONOutput
		Level string `flag:"level,l" desc:"minimal level" default:"trace"`
	}
	var params dumpParams
	command := &Command{
		Name:   "dump",
		Params: func() any { return &params },
		Run:    func(args []string) error { return nil },
	}

	if err := command.Execute([]string{"-l", "info", "--json"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if params.Level != "info" || !params.OutputJSON {
		t.Errorf("params = %+v, want level info with JSON output", params)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "dump",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("dump", pflag.ContinueOnError)
			flagSet.Bool("include-truncated", false, "read damaged files")
			flagSet.String("monitor", "", "monitor id")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--monitr"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --monitor") {
		t.Errorf("error = %q, want suggestion for '--monitor'", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "dump",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("dump", pflag.ContinueOnError)
			flagSet.Bool("include-truncated", false, "read damaged files")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "ckmon",
		Subcommands: []*Command{
			{Name: "dump"},
			{Name: "validate"},
			{Name: "version"},
		},
	}

	err := root.Execute([]string{"valdate"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "validate"`) {
		t.Errorf("error = %q, want suggestion for 'validate'", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			var output bytes.Buffer
			root := &Command{
				Name:    "ckmon",
				Summary: "Structured log files and relays",
				Output:  &output,
				Subcommands: []*Command{
					{Name: "dump", Summary: "Print log files"},
				},
			}

			if err := root.Execute([]string{helpArg}); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
			if !strings.Contains(output.String(), "Print log files") {
				t.Errorf("help output = %q", output.String())
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name:   "ckmon",
		Output: io.Discard,
		Subcommands: []*Command{
			{Name: "dump", Summary: "Print log files"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "ckmon",
		Description: "Structured log files and relays.",
		Subcommands: []*Command{
			{Name: "dump", Summary: "Print merged log files"},
			{Name: "relay", Summary: "Run a command and relay its logs"},
		},
		Params: func() any {
			return &struct {
				Config string `flag:"config" desc:"configuration file"`
			}{}
		},
		Examples: []Example{
			{
				Description: "Print every monitor of a directory",
				Command:     "ckmon dump logs/*.ckmon",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Structured log files and relays.",
		"Usage:",
		"ckmon <command> [flags]",
		"Commands:",
		"Print merged log files",
		"Flags:",
		"--config",
		"Examples:",
		"ckmon dump logs/*.ckmon",
		"Run 'ckmon <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "ckmon"}
	index := &Command{Name: "index", parent: root}
	build := &Command{Name: "build", parent: index}

	if got := build.fullName(); got != "ckmon index build" {
		t.Errorf("build.fullName() = %q, want %q", got, "ckmon index build")
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 3}
	coder, ok := err.(interface{ ExitCode() int })
	if !ok || coder.ExitCode() != 3 {
		t.Errorf("ExitError does not report code 3")
	}
	if err.Error() != "exit code 3" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestEmitJSON(t *testing.T) {
	var output bytes.Buffer
	disabled := JSONOutput{}
	if done, err := disabled.EmitJSON(&output, []string{"x"}); done || err != nil {
		t.Errorf("EmitJSON without --json = (%v, %v)", done, err)
	}

	enabled := JSONOutput{OutputJSON: true}
	var nothing []string
	if done, err := enabled.EmitJSON(&output, nothing); !done || err != nil {
		t.Fatalf("EmitJSON = (%v, %v)", done, err)
	}
	if got := strings.TrimSpace(output.String()); got != "[]" {
		t.Errorf("nil slice written as %q, want []", got)
	}
}
