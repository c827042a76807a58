package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/builditusa/scopecast/internal/budget"
	"github.com/builditusa/scopecast/internal/config"
	"github.com/builditusa/scopecast/internal/store"
)

func newContextCmd(cfg *config.Config) *cobra.Command {
	var withZip bool
	cmd := &cobra.Command{
		Use:   "context <project-id>",
		Short: "Print the context bundle built for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid project id: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			ctx := cmd.Context()
			db, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			bundle, err := budget.NewBuilder(db, slog.Default()).Build(ctx, id)
			if err != nil {
				return err
			}
			if withZip {
				if bundle.ZipCode, err = db.ZipCode(ctx, id); err != nil {
					return err
				}
			}

			out, err := bundle.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			fmt.Fprintf(cmd.ErrOrStderr(), "interactions: %d, estimated tokens: %d\n", bundle.InteractionCount, bundle.EstimatedTokens)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withZip, "zip", false, "include the owner's zip code, as for estimate generation")
	return cmd
}
