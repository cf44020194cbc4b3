// walletctl is a terminal front end for the custodial wallet. It drives the
// session core interactively and can also serve a local fake backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/config"
	"github.com/boddenberg/wallet-session-go/internal/handler"
	"github.com/boddenberg/wallet-session-go/internal/infra/client"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/infra/resilience"
	"github.com/boddenberg/wallet-session-go/internal/service"
)

var version = "dev" // set by the linker

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "walletctl",
		Short: "Terminal client for the custodial wallet.",
		Long: `walletctl logs into a wallet backend and lets you check your balance,
add money, send money, and request or answer payment requests.

Running without a subcommand starts the interactive shell.`,
		SilenceUsage: true,
		Version:      version,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./walletctl.yaml or $HOME/.config/walletctl/walletctl.yaml)")
	cmd.PersistentFlags().String("base-url", "", "wallet backend base URL")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("otlp-endpoint", "", "OTLP gRPC endpoint for traces")

	shellCmd := newShellCmd(&cfgFile)
	cmd.RunE = shellCmd.RunE
	cmd.Flags().AddFlagSet(shellCmd.LocalFlags())

	cmd.AddCommand(shellCmd)
	cmd.AddCommand(newFakeBackendCmd(&cfgFile))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the walletctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "walletctl", version)
		},
	}
}

func newShellCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive wallet shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, *cfgFile)
			if err != nil {
				return err
			}
			return runShell(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("ops-addr", "", "serve health, metrics and state on this address")
	return cmd
}

func runShell(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	shutdown, err := observability.InitTracer(ctx, "walletctl", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdown(context.Background())

	metrics := observability.NewMetrics()

	backend, err := client.New(cfg.BaseURL, cfg.HTTPTimeout, resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}, metrics, logger.Named("client"))
	if err != nil {
		return err
	}

	con := newConsole(in, out)
	app := service.NewApp(backend, backend, con, con, service.Options{
		SearchCacheTTL:        cfg.SearchCacheTTL,
		SearchCacheMaxEntries: cfg.SearchCacheMaxEntries,
		LogoutTimeout:         cfg.LogoutTimeout,
	}, metrics, logger)
	defer app.Close()

	if cfg.OpsAddr != "" {
		srv := &http.Server{
			Addr:         cfg.OpsAddr,
			Handler:      handler.NewRouter(app, metrics, logger.Named("ops")),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			logger.Info("ops server starting", zap.String("addr", cfg.OpsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	logger.Debug("shell starting", zap.String("base_url", cfg.BaseURL))
	return newShell(app, metrics, con).run(ctx)
}
