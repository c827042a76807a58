package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/builditusa/scopecast/internal/config"
	"github.com/builditusa/scopecast/internal/hermes"
)

func newEventsCmd(cfg *config.Config) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print scopecast events from NATS until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.NatsURL == "" {
				return errors.New("NATS_URL is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
			if err != nil {
				return err
			}
			defer hc.Close()

			out := cmd.OutOrStdout()
			if err := hc.Subscribe(subject, func(subject string, data []byte) {
				fmt.Fprintf(out, "%s %s\n", subject, data)
			}); err != nil {
				return err
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", hermes.SubjectAll, "subject to subscribe to")
	return cmd
}
