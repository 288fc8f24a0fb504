package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fund_extractor/pkg/core/inbox"
	"fund_extractor/pkg/core/logging"
)

func watchCmd(cfgPath *string) *cobra.Command {
	var backfill bool
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Process and store every portfolio file dropped into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			w := inbox.New(args[0], func(ctx context.Context, path string) error {
				_, err := a.processor.ProcessAndStore(ctx, path)
				return err
			}, logging.Named(a.logger, "inbox"))
			w.Backfill = backfill
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&backfill, "backfill", false, "also process files already in the directory")
	return cmd
}
