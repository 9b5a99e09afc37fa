package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/fitsched/internal/auth"
	"github.com/example/fitsched/internal/config"
	"github.com/example/fitsched/internal/crypto"
	"github.com/example/fitsched/internal/users"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and their gym credentials",
	}
	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

func userRepo(ctx context.Context, cfg config.Config) (*users.Repo, func(), error) {
	d, err := openDB(ctx, cfg, true)
	if err != nil {
		return nil, nil, err
	}
	sealer, err := crypto.New(cfg.CredentialKey)
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("credential key: %w", err)
	}
	return users.NewRepo(d, sealer), d.Close, nil
}

func newUserAddCmd() *cobra.Command {
	var username, password, displayName, siteLogin, sitePassword string

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a management-API user, optionally with gym credentials",
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

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			id, err := repo.Create(ctx, username, hash, displayName)
			if err != nil {
				return err
			}
			if siteLogin != "" {
				if err := repo.SetSiteCredentials(ctx, id, siteLogin, sitePassword); err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stdout, "created user %q (id=%d)\n", username, id)
			return nil
		},
	}

	c.Flags().StringVar(&username, "username", "", "username")
	c.Flags().StringVar(&password, "password", "", "password")
	c.Flags().StringVar(&displayName, "display-name", "", "display name")
	c.Flags().StringVar(&siteLogin, "site-login", "", "gym account email")
	c.Flags().StringVar(&sitePassword, "site-password", "", "gym account password (stored sealed)")
	_ = c.MarkFlagRequired("username")
	_ = c.MarkFlagRequired("password")
	return c
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
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

			us, err := repo.List(ctx)
			if err != nil {
				return err
			}
			for _, u := range us {
				creds := "no gym credentials"
				if u.SiteLogin != "" {
					creds = u.SiteLogin
				}
				fmt.Fprintf(os.Stdout, "%d\t%s\t%s\n", u.ID, u.Username, creds)
			}
			return nil
		},
	}
}
