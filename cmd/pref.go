package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/fitsched/internal/config"
	"github.com/example/fitsched/internal/users"
)

func newPrefCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pref",
		Short: "Manage auto-booking preferences",
	}
	cmd.AddCommand(newPrefAddCmd())
	cmd.AddCommand(newPrefListCmd())
	return cmd
}

func newPrefAddCmd() *cobra.Command {
	var (
		userID   int64
		weekday  string
		activity string
	)

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a weekday/activity pair to auto-book for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			ctx := context.Background()
			repo, closeDB, err := userRepo(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			p := users.Preference{UserID: userID, Weekday: weekday, ActivityName: activity}
			if err := p.Validate(); err != nil {
				return err
			}
			id, err := repo.CreatePreference(ctx, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created preference %d: %s / %s\n", id, weekday, activity)
			return nil
		},
	}

	c.Flags().Int64Var(&userID, "user", 0, "user id")
	c.Flags().StringVar(&weekday, "weekday", "", "French weekday name (lundi..dimanche)")
	c.Flags().StringVar(&activity, "activity", "", "activity name as shown on the schedule")
	_ = c.MarkFlagRequired("user")
	_ = c.MarkFlagRequired("weekday")
	_ = c.MarkFlagRequired("activity")
	return c
}

func newPrefListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [user-id]",
		Short: "List preferences, for one user or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			ctx := context.Background()
			repo, closeDB, err := userRepo(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			var prefs []users.Preference
			if len(args) == 1 {
				uid, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid user id %q", args[0])
				}
				prefs, err = repo.ListPreferencesByUser(ctx, uid)
				if err != nil {
					return err
				}
			} else {
				var err error
				prefs, err = repo.ActivePreferences(ctx)
				if err != nil {
					return err
				}
			}
			for _, p := range prefs {
				fmt.Fprintf(os.Stdout, "%d\tuser=%d\t%s\t%s\n", p.ID, p.UserID, p.Weekday, p.ActivityName)
			}
			return nil
		},
	}
}
