// Package main is the entry point for the shared budget API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gitlab.com/yelinaung/sharedbudget/internal/auth"
	"gitlab.com/yelinaung/sharedbudget/internal/changefeed"
	"gitlab.com/yelinaung/sharedbudget/internal/config"
	"gitlab.com/yelinaung/sharedbudget/internal/database"
	"gitlab.com/yelinaung/sharedbudget/internal/events"
	"gitlab.com/yelinaung/sharedbudget/internal/httpapi"
	"gitlab.com/yelinaung/sharedbudget/internal/logger"
	"gitlab.com/yelinaung/sharedbudget/internal/repository"
	"gitlab.com/yelinaung/sharedbudget/internal/service"
	"gitlab.com/yelinaung/sharedbudget/internal/session"
	"gitlab.com/yelinaung/sharedbudget/internal/store"
	"gitlab.com/yelinaung/sharedbudget/internal/store/memory"
	"gitlab.com/yelinaung/sharedbudget/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("sharedbudget %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	logger.SetFormat(cfg.LogFormat)
	logger.InitHashSalt()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		Exporter:    cfg.OTelExporter,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	hub := changefeed.NewHub()
	st, closeStore, err := openStore(ctx, cfg, hub)
	if err != nil {
		return err
	}
	defer closeStore()

	var msgEvents service.MessageEvents
	if cfg.EventsEnabled() {
		publisher, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("failed to connect to message broker: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		msgEvents = publisher
		logger.Log.Info().Str("exchange", cfg.AMQPExchange).Msg("Publishing chat events")
	}

	authn := auth.NewPasswordAuthenticator(st, cfg.DefaultCountryCode)
	reconciler := service.NewReconciler(st, hub)
	groups := service.NewGroupService(st, cfg.DefaultCountryCode)
	sessions := session.NewManager(auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL), reconciler)
	defer sessions.Close()

	go reconciler.RunReconcileLoop(ctx, cfg.ReconcileInterval)
	go sessions.RunSweepLoop(ctx, session.DefaultSweepInterval)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	api := httpapi.NewServer(httpapi.Deps{
		Store:        st,
		Auth:         authn,
		Sessions:     sessions,
		Budgets:      service.NewBudgetService(st, nil),
		Groups:       groups,
		GroupBudgets: service.NewGroupBudgetService(st, nil),
		Sharing:      service.NewSharingService(st),
		Messages:     service.NewMessageService(st, hub, msgEvents, nil),
		Profiles:     service.NewProfileService(st, authn, reconciler, groups, cfg.DefaultCountryCode),
		Registry:     registry,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("addr", cfg.HTTPAddr).Str("version", version).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// openStore connects the configured backend. With PostgreSQL, row changes
// reach the hub through LISTEN/NOTIFY; the memory store publishes directly.
func openStore(ctx context.Context, cfg *config.Config, hub *changefeed.Hub) (store.Store, func(), error) {
	if !cfg.UsesPostgres() {
		logger.Log.Warn().Msg("Using in-memory storage; data is lost on restart")
		return memory.New(hub), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Log.Info().Msg("Database initialized successfully")

	listener := changefeed.NewListener(pool, hub, database.ChannelUserChanged, database.ChannelMessagesChanged)
	go listener.Run(ctx)

	return repository.NewStore(pool), pool.Close, nil
}
