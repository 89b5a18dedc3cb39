package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) printConfigCommand() *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			o.Println(FormatConfig(a.cfg))

			o.Println("")
			o.Println("# Sources:")

			sources := a.cfg.Sources

			if sources.Global != "" {
				o.Println("#   global:", sources.Global)
			}

			if sources.Project != "" {
				o.Println("#   project:", sources.Project)
			}

			if sources.Global == "" && sources.Project == "" {
				o.Println("#   (using defaults only)")
			}

			return nil
		},
	}
}
