package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/multisocket/archbench/metrics"
	"github.com/multisocket/archbench/server"
)

// target is where a load is sent: an external server, or one started in
// process for the duration of the command.
type target struct {
	sf       serverFlags
	external bool
}

func (t *target) register(cmd *cobra.Command) {
	t.sf.register(cmd.Flags(), "127.0.0.1:0")
	cmd.Flags().BoolVar(&t.external, "external", false, "Load a running server at --addr instead of starting one")
}

// start returns the address to load and a function releasing the target.
func (t *target) start() (addr string, stop func() error, err error) {
	if t.external {
		return t.sf.addr, func() error { return nil }, nil
	}

	var s server.Server
	if s, err = t.sf.newServer(); err != nil {
		return
	}
	if err = s.Start(); err != nil {
		return
	}
	return s.Addr().String(), s.Stop, nil
}

func runCmd() *cobra.Command {
	var (
		t  target
		lf loadFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one load and report the mean latency",
		Long: `Run one load against a server and print the mean round trip latency.

Without --external a server of the selected architecture is started in
process on --addr.

Examples:
  archbench run --arch reactor --size 1000 --clients 20 --requests 10
  archbench run --external --addr 10.0.0.2:8888 --delay 10ms --verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return runLoad(ctx, cmd, &t, &lf)
		},
	}

	t.register(cmd)
	lf.register(cmd.Flags())
	return cmd
}

func runLoad(ctx context.Context, cmd *cobra.Command, t *target, lf *loadFlags) (err error) {
	addr, stop, err := t.start()
	if err != nil {
		return err
	}
	defer func() {
		if serr := stop(); err == nil {
			err = serr
		}
	}()

	m := metrics.NewClient(metrics.WithRegistry(registry))
	cfg, err := lf.clientConfig(lf.params(), addr, t.sf.codec, m)
	if err != nil {
		return err
	}
	r, err := newRunner(cfg)
	if err != nil {
		return err
	}

	st, err := r.Run(ctx)
	if err != nil {
		log.WithError(err).Warn("load finished with failures")
	}
	mean, merr := st.Mean()
	if merr != nil {
		return merr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.3f ms\t(%s)\n", t.sf.arch, mean, st)
	return err
}
