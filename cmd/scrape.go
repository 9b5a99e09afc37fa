package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/fitsched/internal/artifacts"
	"github.com/example/fitsched/internal/config"
	"github.com/example/fitsched/internal/heitz"
	"github.com/example/fitsched/internal/planning"
)

// scrape fetches one or more days of the schedule and prints them.
// Diagnostic command: it talks to the site directly, without the retry
// policy or the notification pipeline.
func newScrapeCmd() *cobra.Command {
	var (
		fromOffset int
		toOffset   int
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch the schedule for a range of days and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if toOffset < fromOffset {
				return fmt.Errorf("--to must be >= --from")
			}
			log := newLogger()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			site := heitz.NewClient(heitz.Options{
				BaseURL:  cfg.SiteBaseURL,
				CenterID: cfg.CenterID,
				Monitor:  heitz.Credentials{Login: cfg.MonitorEmail, Password: cfg.MonitorPassword},
				Timeout:  cfg.PageTimeout,
				Sink:     artifacts.NewSink(cfg.ArtifactsDir, log),
				Log:      log,
			})

			var store *planning.Store
			if save {
				d, err := openDB(ctx, cfg, true)
				if err != nil {
					return err
				}
				defer d.Close()
				store = planning.NewStore(d)
			}

			for offset := fromOffset; offset <= toOffset; offset++ {
				date := time.Now().AddDate(0, 0, offset)
				entries, err := site.FetchSchedule(ctx, date)
				if err != nil {
					return fmt.Errorf("fetch %s: %w", date.Format("2006-01-02"), err)
				}

				fmt.Printf("%s (%s): %d entries\n",
					date.Format("2006-01-02"), planning.WeekdayName(date), len(entries))
				for _, e := range entries {
					state := "libre"
					if e.IsBooked {
						state = "réservé"
					} else if e.IsFull {
						state = "complet"
					}
					fmt.Printf("  %s  %-30s %-12s %-8s %s\n",
						e.StartTime, e.ActivityName, e.Room, e.Capacity, state)
				}

				if store != nil {
					snap := planning.Snapshot{TargetDate: date, CapturedAt: time.Now(), Entries: entries}
					if err := store.Replace(ctx, snap); err != nil {
						return fmt.Errorf("save %s: %w", date.Format("2006-01-02"), err)
					}
					if len(entries) > 0 {
						if err := store.MarkPlanningSeen(ctx, date, time.Now()); err != nil {
							return err
						}
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&fromOffset, "from", 0, "first day offset from today")
	cmd.Flags().IntVar(&toOffset, "to", 6, "last day offset from today")
	cmd.Flags().BoolVar(&save, "save", false, "persist the fetched schedules as snapshots")
	return cmd
}
