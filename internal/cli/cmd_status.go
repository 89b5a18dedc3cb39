package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) statusCommand() *Command {
	return &Command{
		Flags: flag.NewFlagSet("status", flag.ContinueOnError),
		Usage: "status",
		Short: "Show store counters after one refresh",
		Long: `Open the objects directory, load every pack index once and print the
store counters as key=value lines.`,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			store, h, err := a.openStore()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			st := store.Stats()

			o.KV("objects_dir", store.ObjectsDir())
			o.KV("generation", st.Generation)
			o.KV("state_id", st.StateID)
			o.KV("indices", st.ListedSlots)
			o.KV("loose_dbs", st.LooseDBs)
			o.KV("slots", st.Slots)
			o.KV("slots_empty", st.SlotsEmpty)
			o.KV("slots_unloaded", st.SlotsUnloaded)
			o.KV("slots_loaded", st.SlotsLoaded)
			o.KV("packs_mapped", st.PacksMapped)
			o.KV("consolidations", st.Consolidations)

			return nil
		},
	}
}
