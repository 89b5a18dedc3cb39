package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/odb/pkg/fs"
	"github.com/calvinalkan/odb/pkg/odb/alternate"
)

func (a *app) alternatesCommand() *Command {
	return &Command{
		Flags: flag.NewFlagSet("alternates", flag.ContinueOnError),
		Usage: "alternates [add <dir>]",
		Short: "List or add alternate object directories",
		Long: `Without arguments, print every alternate object directory reachable from
the objects directory, depth first. "add <dir>" appends dir to
info/alternates unless it is already listed.`,

		MaxArgs: 2,

		Exec: func(_ context.Context, o *IO, args []string) error {
			fsys := fs.NewReal()
			dir := a.cfg.ObjectsDirAbs

			switch {
			case len(args) == 0:
				dirs, err := alternate.Resolve(fsys, dir)
				if err != nil {
					return err
				}

				for _, d := range dirs {
					o.Println(d)
				}

				return nil
			case len(args) == 2 && args[0] == "add":
				return alternate.Append(fsys, dir, args[1])
			default:
				return fmt.Errorf("%w: %v", ErrUnexpectedArgs, args)
			}
		},
	}
}
