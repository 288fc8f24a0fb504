package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fund_extractor/pkg/api/server"
	"fund_extractor/pkg/core/logging"
)

func serveCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(server.Deps{
				Processor:      a.processor,
				Store:          a.store,
				Agents:         a.agents,
				Metrics:        a.metrics,
				UploadDir:      a.cfg.Server.UploadDir,
				MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
				Logger:         logging.Named(a.logger, logging.App),
			})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Address
			}
			return srv.Run(ctx, addr, a.cfg.Server.ShutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return cmd
}
