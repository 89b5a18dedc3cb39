package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/odb/pkg/odb"
)

func (a *app) metricsCommand() *Command {
	return &Command{
		Flags: flag.NewFlagSet("metrics", flag.ContinueOnError),
		Usage: "metrics",
		Short: "Print store metrics in Prometheus text format",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			store, h, err := a.openStore()
			if err != nil {
				return err
			}

			defer func() { _ = h.Close() }()

			reg := prometheus.NewRegistry()

			err = reg.Register(odb.NewCollector(store))
			if err != nil {
				return fmt.Errorf("register collector: %w", err)
			}

			families, err := reg.Gather()
			if err != nil {
				return fmt.Errorf("gather: %w", err)
			}

			for _, mf := range families {
				_, err = expfmt.MetricFamilyToText(o.Out(), mf)
				if err != nil {
					return fmt.Errorf("encode %s: %w", mf.GetName(), err)
				}
			}

			return nil
		},
	}
}
