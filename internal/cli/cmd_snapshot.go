package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/odb/pkg/odb"
)

func (a *app) snapshotCommand() *Command {
	flags := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	verify := flags.Bool("verify", false, "map every pack and check it against its index")

	return &Command{
		Flags: flags,
		Usage: "snapshot [--verify]",
		Short: "List indices and loose dbs in search order",
		Long: `Print one line per index in the order lookups search them, then one line
per loose object directory. Columns are slot, kind, object count and path.

With --verify every pack is mapped; packs that are missing or do not match
their index are reported as warnings.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			_, h, err := a.openStore()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			snap := h.Snapshot()

			for _, l := range snap.Indices {
				if err := ctx.Err(); err != nil {
					return err
				}

				switch l.Kind {
				case odb.LookupMulti:
					o.Row(l.ID, "multi", l.Multi.NumObjects(), l.Multi.Path())
				default:
					o.Row(l.ID, "pack", l.Index.NumObjects(), l.Index.Path())
				}

				if !*verify {
					continue
				}

				for i := range l.NumPacks() {
					_, err := h.PackData(l, i)
					if err != nil {
						o.Warn(fmt.Sprintf("slot %d pack %d: %v", l.ID, i, err), "repack or remove the damaged pack")
					}
				}
			}

			for _, db := range snap.LooseDBs {
				o.Row("-", "loose", "-", db.Path())
			}

			return nil
		},
	}
}
