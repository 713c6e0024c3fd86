package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var sf serverFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a sorting server until interrupted",
		Long: `Run a sorting server of the selected architecture until interrupted.

Examples:
  archbench serve --arch blocking --addr :8888
  archbench serve --arch reactor --codec protobuf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sf.newServer()
			if err != nil {
				return err
			}
			if err = s.Start(); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			<-ctx.Done()

			log.WithField("arch", sf.arch).Info("stopping")
			return s.Stop()
		},
	}

	sf.register(cmd.Flags(), "127.0.0.1:8888")
	return cmd
}
