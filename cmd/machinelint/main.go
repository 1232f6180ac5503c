package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/xennygrimmato/transitions"
)

var cli struct {
	Validate ValidateCmd `cmd:"" help:"Validate machine definition files."`
	Describe DescribeCmd `cmd:"" help:"Print the states and transitions of a machine definition."`
}

// ValidateCmd checks each definition file and reports the first problem in
// every broken one.
type ValidateCmd struct {
	Files []string `arg:"" name:"file" help:"Machine definition files (JSON or YAML)."`
}

func (c *ValidateCmd) Run(ctx *kong.Context) error {
	failed := 0
	for _, path := range c.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(ctx.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		if _, err := transitions.ParseMachineConfig(data); err != nil {
			fmt.Fprintf(ctx.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(ctx.Stdout, "%s: ok\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d definitions failed validation", failed, len(c.Files))
	}
	return nil
}

// DescribeCmd renders a readable summary of one definition.
type DescribeCmd struct {
	File string `arg:"" name:"file" help:"Machine definition file (JSON or YAML)."`
}

func (c *DescribeCmd) Run(ctx *kong.Context) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	cfg, err := transitions.ParseMachineConfig(data)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "machine"
	}
	sep := cfg.Separator
	if sep == "" {
		sep = transitions.DefaultSeparator
	}

	fmt.Fprintf(ctx.Stdout, "machine:   %s\n", name)
	fmt.Fprintf(ctx.Stdout, "initial:   %s\n", cfg.Initial)
	fmt.Fprintf(ctx.Stdout, "separator: %q\n", sep)

	fmt.Fprintln(ctx.Stdout, "states:")
	printStates(ctx.Stdout, cfg.States, "  ")

	if len(cfg.Transitions) > 0 {
		fmt.Fprintln(ctx.Stdout, "transitions:")
		for _, tr := range cfg.Transitions {
			fmt.Fprintf(ctx.Stdout, "  %s\n", formatTransition(tr))
		}
	}
	return nil
}

func printStates(w io.Writer, states []transitions.StateConfig, indent string) {
	for _, st := range states {
		line := indent + st.Name
		var hooks []string
		if len(st.OnEnter) > 0 {
			hooks = append(hooks, "on_enter: "+strings.Join(st.OnEnter, ", "))
		}
		if len(st.OnExit) > 0 {
			hooks = append(hooks, "on_exit: "+strings.Join(st.OnExit, ", "))
		}
		if len(hooks) > 0 {
			line += "  [" + strings.Join(hooks, "; ") + "]"
		}
		fmt.Fprintln(w, line)
		printStates(w, st.Children, indent+"  ")
	}
}

func formatTransition(tr transitions.TransitionConfig) string {
	dest := tr.Dest
	if dest == "" {
		dest = "(internal)"
	}
	line := fmt.Sprintf("%-12s %s -> %s", tr.Trigger, tr.Source, dest)
	if tr.Reenter {
		line += " (reenter)"
	}
	var guards []string
	if len(tr.Conditions) > 0 {
		guards = append(guards, "if "+strings.Join(tr.Conditions, " && "))
	}
	if len(tr.Unless) > 0 {
		guards = append(guards, "unless "+strings.Join(tr.Unless, " || "))
	}
	if len(guards) > 0 {
		line += "  [" + strings.Join(guards, "; ") + "]"
	}
	return line
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("machinelint"),
		kong.Description("Validate and inspect state machine definitions."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
