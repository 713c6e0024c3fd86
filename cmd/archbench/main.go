package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// registry collects every server and client metric of the process.
var registry = prometheus.NewRegistry()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel    string
		metricsAddr string
	)

	rootCmd := &cobra.Command{
		Use:   "archbench",
		Short: "Compare blocking and reactor server architectures",
		Long: `archbench runs a sorting server in one of two architectures and
drives it with concurrent clients, reporting the mean round trip latency.

  blocking  one reader and one writer goroutine per connection
  reactor   one epoll reader loop and one epoll writer loop for all connections`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			if metricsAddr != "" {
				startMetricsListen(metricsAddr)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")

	rootCmd.AddCommand(
		serveCmd(),
		runCmd(),
		sweepCmd(),
	)
	return rootCmd
}

// startMetricsListen serves the registry on /metrics.
func startMetricsListen(addr string) {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		log.WithField("addr", addr).Info("metrics listening")
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics listening")
		}
	}()
}

// signalContext returns a context canceled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case s := <-c:
			log.WithField("signal", s.String()).Info("signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
