package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/config"
	"github.com/boddenberg/wallet-session-go/internal/fakebackend"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
)

func newFakeBackendCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fake-backend",
		Short: "Serve an in-memory wallet backend for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, *cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveFakeBackend(ctx, cfg)
		},
	}
	cmd.Flags().String("listen", "", "address to listen on")
	cmd.Flags().String("redis-url", "", "keep idempotency keys in this Redis (redis://host:port/db)")
	return cmd
}

func serveFakeBackend(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	shutdown, err := observability.InitTracer(ctx, "wallet-fake-backend", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdown(context.Background())

	opts := fakebackend.Options{JWTSecret: cfg.Fake.JWTSecret}
	if cfg.Fake.RedisURL != "" {
		store, err := fakebackend.DialRedisIdempotency(ctx, cfg.Fake.RedisURL, 24*time.Hour)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Idempotency = store
		logger.Info("idempotency keys stored in redis")
	}

	srv := &http.Server{
		Addr:         cfg.Fake.Listen,
		Handler:      fakebackend.New(opts, logger).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake backend starting", zap.String("addr", cfg.Fake.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fake backend: %w", err)
	case <-ctx.Done():
	}

	logger.Info("fake backend shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
