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

	"golang.org/x/sync/errgroup"

	"github.com/agentgym/episodic-backend/internal/app"
	"github.com/agentgym/episodic-backend/internal/data/aggregates"
	"github.com/agentgym/episodic-backend/internal/data/repos"
	"github.com/agentgym/episodic-backend/internal/handlers"
	"github.com/agentgym/episodic-backend/internal/observability"
	"github.com/agentgym/episodic-backend/internal/platform/db"
	"github.com/agentgym/episodic-backend/internal/platform/logger"
	"github.com/agentgym/episodic-backend/internal/server"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := app.Load(log)
	if err != nil {
		log.Error("Config load failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	// Metrics
	metrics := observability.NewMetrics()

	// Database
	dbService, err := db.NewWithType(log, cfg.DBType)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	gdb := dbService.DB()

	// Aggregates
	log.Info("Setting up aggregates...")
	deps := aggregates.Deps{
		DB:    gdb,
		Log:   log,
		Hooks: aggregates.NewMetricsHooks(metrics),
	}
	actionEvents := aggregates.NewActionEvents(deps)
	episodes := aggregates.NewEpisodes(deps, actionEvents)

	// Repos
	log.Info("Setting up repos...")
	reviewRepo := repos.NewReviewRepo(gdb, log)
	reviewableRepo := repos.NewReviewableRepo(gdb, log)
	actionOptRepo := repos.NewActionOptRepo(gdb, log)

	// Handlers
	log.Info("Setting up handlers...")
	episodeHandler := handlers.NewEpisodeHandler(log, episodes)
	actionEventHandler := handlers.NewActionEventHandler(log, actionEvents)
	reviewHandler := handlers.NewReviewHandler(log, reviewRepo)
	reviewableHandler := handlers.NewReviewableHandler(log, reviewableRepo)
	actionOptHandler := handlers.NewActionOptHandler(log, actionOptRepo, actionEvents)

	router := server.NewRouter(server.RouterConfig{
		Log:                log,
		Metrics:            metrics,
		AllowOrigins:       cfg.AllowOrigins,
		EpisodeHandler:     episodeHandler,
		ActionEventHandler: actionEventHandler,
		ReviewHandler:      reviewHandler,
		ReviewableHandler:  reviewableHandler,
		ActionOptHandler:   actionOptHandler,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("Shutting down HTTP server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if otelShutdown != nil {
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
