package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/relaykit/gmail-relay/internal/authflow"
	"github.com/relaykit/gmail-relay/internal/config"
	"github.com/relaykit/gmail-relay/internal/credstore"
	"github.com/relaykit/gmail-relay/internal/google"
	"github.com/relaykit/gmail-relay/internal/logging"
	"github.com/relaykit/gmail-relay/internal/relay"
	"github.com/relaykit/gmail-relay/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode      bool
		httpAddr       string
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay HTTP server",
		Long: `Start the HTTP server that relays POST /send requests to the Gmail API.

Configuration is read from the environment (a .env file is loaded if
present). Required settings:

  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, GOOGLE_REDIRECT_URL
      Google OAuth client used to obtain and refresh credentials.
  API_KEY
      Shared secret clients must present in the x-api-key header.
  MAIL_FROM
      Sender address stamped on every outgoing message.

Before the first send, visit /auth/start to authorize the Gmail
account. The obtained credentials are persisted to CREDENTIALS_FILE
and refreshed automatically from then on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg := config.Load()
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debugMode
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.MetricsEnabled = metricsEnabled
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging. Can also use DEBUG env var.")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(cfg config.Config) error {
	logger := logging.New(cfg.Debug)
	slog.SetDefault(logger)

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if cfg.MetricsEnabled {
		metricsServer = server.NewMetricsServer(cfg.MetricsAddr)

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			log.Printf("Metrics server started on %s", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}
	defer func() {
		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error during metrics server shutdown: %v", err)
			}
		}
	}()

	store := credstore.New(cfg.CredentialsFile)
	manager := google.NewManager(shutdownCtx, cfg, store, logger)

	svc := relay.NewService(
		relay.Address{Name: cfg.SenderName, Email: cfg.Sender},
		cfg.AllowFromOverride,
		relay.SessionFunc(func(ctx context.Context) (relay.Provider, error) {
			return manager.Session(ctx)
		}),
		logger,
	)

	pending := authflow.NewPendingStore(cfg.StateTTL)
	controller := authflow.NewController(manager, pending, cfg, logger)

	srv := server.New(cfg, svc, controller, logger)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		stopCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(stopCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	return nil
}
