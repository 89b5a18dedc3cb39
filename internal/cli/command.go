package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// exitInterrupted is the exit code of a command cancelled by a signal.
const exitInterrupted = 130

// Command is one odbx subcommand.
type Command struct {
	// Flags defines command-specific flags. Nil means the command takes
	// none besides --help.
	Flags *flag.FlagSet

	// Usage is shown after "odbx [global flags]" in help; its first word
	// is the command name. Example: "alternates [add <dir>]".
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// MaxArgs caps the positional arguments left after flag parsing.
	// Extra arguments fail before Exec runs.
	MaxArgs int

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-26s %s", c.Usage, c.Short)
}

// PrintHelp writes the help for "odbx <cmd> --help" to w.
func (c *Command) PrintHelp(w io.Writer) {
	fprintln(w, "Usage: odbx [global flags]", c.Usage)
	fprintln(w)

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	fprintln(w, desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		fprintln(w)
		fprintln(w, "Flags:")
		c.Flags.SetOutput(w)
		c.Flags.PrintDefaults()
	}

	fprintln(w)
	fprintln(w, "Run 'odbx --help' for global flags.")
}

// Run parses flags and executes the command. Returns exit code.
//
// Flag and argument errors print the command help to stderr and exit 1.
// A command stopped by a signal exits 130.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	if c.Flags == nil {
		c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}

	c.Flags.SetOutput(io.Discard)

	err := c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		c.PrintHelp(o.out)

		return 0
	}

	if err == nil && c.Flags.NArg() > c.MaxArgs {
		err = fmt.Errorf("%w: %s", ErrUnexpectedArgs, strings.Join(c.Flags.Args()[c.MaxArgs:], " "))
	}

	if err != nil {
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o.errOut)

		return 1
	}

	err = c.Exec(ctx, o, c.Flags.Args())

	switch {
	case err == nil:
		return o.Finish()
	case errors.Is(err, context.Canceled):
		o.Finish()
		o.ErrPrintln("interrupted")

		return exitInterrupted
	default:
		o.ErrPrintln("error:", err)

		return 1
	}
}
