// main.go
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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/teamflux/teamflux-api/internal/api"
	"github.com/teamflux/teamflux-api/internal/config"
	"github.com/teamflux/teamflux-api/internal/cron"
	"github.com/teamflux/teamflux-api/internal/db"
	"github.com/teamflux/teamflux-api/internal/logger"
	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/seed"
	"github.com/teamflux/teamflux-api/internal/service"
	"github.com/teamflux/teamflux-api/internal/socket"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "teamflux-api",
		Short:         "Technical debt and deprecation tracking API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), runServer)
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), runServer)
		},
	}

	var down int
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
				if down > 0 {
					return db.RollbackMigrations(cfg.DatabaseURL, down, logger.Component(log, "db"))
				}
				return db.RunMigrations(cfg.DatabaseURL, logger.Component(log, "db"))
			})
		},
	}
	migrateCmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead of applying")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed development data and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
				repos, _, closeStore, err := openStore(ctx, cfg, log)
				if err != nil {
					return err
				}
				defer closeStore()
				return seed.SeedData(ctx, repos, log)
			})
		},
	}

	root.AddCommand(serve, migrateCmd, seedCmd)
	return root
}

// withRuntime loads the environment and configuration, builds the logger
// and runs fn. Errors are logged before being returned.
func withRuntime(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, log zerolog.Logger) error) error {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return err
	}

	log := logger.New(cfg.Environment)
	if envErr != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

// openStore connects the configured storage backend. The returned Pinger is
// nil for the in-memory store.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*repository.Repositories, api.Pinger, func(), error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		return repository.NewMemoryRepositories(), nil, func() {}, nil
	}

	dbLog := logger.Component(log, "db")
	if err := db.RunMigrations(cfg.DatabaseURL, dbLog); err != nil {
		return nil, nil, nil, fmt.Errorf("migrations: %w", err)
	}

	pg, err := db.NewPostgresDB(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		return nil, nil, nil, err
	}
	return repository.NewRepositories(pg.Pool, pg.SQL), pg, pg.Close, nil
}

func runServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ============================================
	// Storage
	// ============================================
	repos, database, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ============================================
	// Redis cache (optional)
	// ============================================
	var (
		cache     service.Cache
		cachePing api.Pinger
	)
	if cfg.RedisURL != "" {
		redisDB, err := db.NewRedisDB(ctx, cfg.RedisURL, logger.Component(log, "cache"))
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache")
		} else {
			defer redisDB.Close()
			cache = redisDB
			cachePing = redisDB
		}
	}

	// ============================================
	// WebSocket hub
	// ============================================
	hub := socket.NewHub(logger.Component(log, "hub"))
	go hub.Run(ctx)
	broadcaster := socket.NewBroadcaster(hub)

	// ============================================
	// Seed data (development only)
	// ============================================
	if !cfg.IsProduction() {
		if err := seed.SeedData(ctx, repos, log); err != nil {
			log.Error().Err(err).Msg("seeding failed")
		}
	}

	services := service.NewServices(&service.ServiceDeps{
		Config:      cfg,
		Repos:       repos,
		Broadcaster: broadcaster,
		Cache:       cache,
		Logger:      log,
	})

	// ============================================
	// Cron scheduler
	// ============================================
	scheduler := cron.NewScheduler(repos.DeprecationRepo, broadcaster, cfg.DeadlineWarningDays, log)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	router := api.NewRouter(api.RouterDeps{
		Config:   cfg,
		Services: services,
		Hub:      hub,
		Logger:   log,
		Database: database,
		Cache:    cachePing,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Str("storage", cfg.Storage).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}
