package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/hutomosaktikartiko/patchly/internal/config"
)

// PrintConfigCmd prints the resolved tuning configuration as JSON.
func PrintConfigCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("config", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "config",
		Short: "Print the resolved configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			out, err := config.Format(cfg)
			if err != nil {
				return err
			}

			o.Println(out)

			return nil
		},
	}
}
