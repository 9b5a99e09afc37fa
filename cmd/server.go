package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/example/fitsched/internal/auth"
	"github.com/example/fitsched/internal/config"
	"github.com/example/fitsched/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the schedule monitor and the management API",
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

			go func() {
				if err := m.engine.Run(ctx); err != nil && ctx.Err() == nil {
					log.Error("monitor stopped", "err", err)
					cancel()
				}
			}()

			ws := &web.Server{
				Auth:            auth.NewStore(m.users, cfg.CookieHashKey, cfg.CookieBlockKey),
				Users:           m.users,
				Attempts:        m.attempts,
				Snapshots:       m.snapshots,
				TargetDayOffset: cfg.TargetDayOffset,
				Metrics:         promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}),
				Log:             log,
			}
			return web.Start(ctx, cfg.ListenAddr, ws.Routes(), log)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}
