package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI subcommand with unified help generation.
type Command struct {
	// Flags defines command-specific flags. The FlagSet's own name is
	// unused; command identity comes from the first word of Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "patchly" in help,
	// e.g. "diff <source> <target> <patch-file>".
	Usage string

	// Short is a one-line description for the top-level help listing.
	Short string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name: the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the one-line summary used in the top-level listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-32s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help text for "patchly <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: patchly", c.Usage)
	o.Println()
	o.Println(c.Short)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command, returning a process exit code.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return 0
}
