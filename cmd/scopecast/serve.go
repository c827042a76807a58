package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/builditusa/scopecast/internal/anthropic"
	"github.com/builditusa/scopecast/internal/api"
	"github.com/builditusa/scopecast/internal/config"
	"github.com/builditusa/scopecast/internal/hermes"
	"github.com/builditusa/scopecast/internal/portfolio"
	"github.com/builditusa/scopecast/internal/ratelimit"
	"github.com/builditusa/scopecast/internal/scope"
	"github.com/builditusa/scopecast/internal/store"
	"github.com/builditusa/scopecast/internal/stream"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "create missing tables on startup")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger := slog.Default()
	logger.Info("scopecast starting", "port", cfg.Port)

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if cfg.AnthropicAPIKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required")
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}
	logger.Info("database connected")

	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel,
		anthropic.WithBaseURL(cfg.AnthropicURL),
		anthropic.WithMaxTokens(cfg.MaxTokens),
	)
	logger.Info("anthropic client ready", "model", llm.Model())

	opts := []api.Option{api.WithHealthCheck("database", db.Ping)}

	var publisher hermes.Publisher = hermes.Nop{}
	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return err
		}
		defer hc.Close()
		publisher = hc
		opts = append(opts, api.WithHealthCheck("nats", func(context.Context) error {
			if !hc.Connected() {
				return errors.New("not connected")
			}
			return nil
		}))
		logger.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		logger.Warn("NATS not configured, events will not be published")
	}

	limiter, err := newLimiter(cfg, db, logger)
	if err != nil {
		return err
	}

	orch := stream.NewOrchestrator(llm, logger, stream.WithAtomic(cfg.StreamAtomic))
	svc := scope.New(db, orch, publisher, logger)
	pf := portfolio.New(llm, db, logger)
	opts = append(opts, api.WithPortfolio(pf), api.WithPublisher(publisher))

	srv := api.NewServer(api.Config{
		Port:          cfg.Port,
		AllowedOrigin: cfg.AllowedOrigin,
		APIToken:      cfg.APIToken,
	}, svc, limiter, logger, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("scopecast ready", "port", cfg.Port, "rate_limit_backend", cfg.RateLimitBackend)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	logger.Info("scopecast stopped")
	return nil
}

func newLimiter(cfg *config.Config, db *store.Store, logger *slog.Logger) (*ratelimit.Limiter, error) {
	var rs ratelimit.Store
	switch cfg.RateLimitBackend {
	case "memory":
		rs = ratelimit.NewMemoryStore()
	case "postgres":
		rs = db.RateLimits()
	default:
		return nil, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", cfg.RateLimitBackend)
	}
	return ratelimit.New(rs, logger, ratelimit.WithTiers(
		ratelimit.Tier{Requests: cfg.RateLimitUnauth, Window: cfg.RateLimitWindow},
		ratelimit.Tier{Requests: cfg.RateLimitAuth, Window: cfg.RateLimitWindow},
	)), nil
}
