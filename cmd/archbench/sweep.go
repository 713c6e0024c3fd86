package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/multisocket/archbench/bench"
	"github.com/multisocket/archbench/client"
	"github.com/multisocket/archbench/metrics"
)

func newRunner(cfg client.Config) (bench.Runner, error) {
	return client.NewRunner(cfg)
}

type sweepFlags struct {
	criteria string
	rng      bench.Range
}

func sweepCmd() *cobra.Command {
	var (
		t  target
		lf loadFlags
		sw sweepFlags
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Vary one load parameter over a range",
		Long: `Vary one load parameter over an inclusive range, keeping the others
fixed, and print the mean latency of every run as a table.

The criteria is one of size, clients or delay; delay values are
milliseconds.

Examples:
  archbench sweep --arch blocking --criteria size --start 100 --end 1000 --step 100 --clients 10
  archbench sweep --arch reactor --criteria delay --start 0 --end 50 --step 10`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			criteria, err := bench.ParseCriteria(sw.criteria)
			if err != nil {
				return err
			}
			if err = sw.rng.Validate(); err != nil {
				return err
			}

			addr, stop, err := t.start()
			if err != nil {
				return err
			}
			defer func() {
				if serr := stop(); err == nil {
					err = serr
				}
			}()

			ctx, cancel := signalContext()
			defer cancel()

			m := metrics.NewClient(metrics.WithRegistry(registry))
			factory := func(p bench.Params) (bench.Runner, error) {
				cfg, err := lf.clientConfig(p, addr, t.sf.codec, m)
				if err != nil {
					return nil, err
				}
				return newRunner(cfg)
			}

			res, err := bench.RunSweep(ctx, factory, criteria, sw.rng, lf.params())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Architecture = %s, Requests = %d\n", t.sf.arch, lf.requests)
			return res.WriteTable(out)
		},
	}

	t.register(cmd)
	lf.register(cmd.Flags())
	cmd.Flags().StringVar(&sw.criteria, "criteria", string(bench.CriteriaSize), "Parameter to vary (size, clients, delay)")
	cmd.Flags().IntVar(&sw.rng.Start, "start", 0, "First value")
	cmd.Flags().IntVar(&sw.rng.End, "end", 0, "Last value, inclusive")
	cmd.Flags().IntVar(&sw.rng.Step, "step", 1, "Increment")
	return cmd
}
