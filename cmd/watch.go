package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/fitsched/internal/config"
)

func newWatchCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the schedule monitor without the management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := newLogger()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := openDB(ctx, cfg, migrateUp)
			if err != nil {
				return err
			}
			defer d.Close()

			m, err := buildMonitor(cfg, d, log)
			if err != nil {
				return err
			}

			err = m.engine.Run(ctx)
			if errors.Is(err, context.Canceled) {
				log.Info("monitor stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}
