// Package main is the entrypoint for the LoRA Studio API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lorastudio/internal/api"
	"github.com/kiranshivaraju/lorastudio/internal/api/handler"
	mw "github.com/kiranshivaraju/lorastudio/internal/api/middleware"
	"github.com/kiranshivaraju/lorastudio/internal/cache"
	"github.com/kiranshivaraju/lorastudio/internal/config"
	"github.com/kiranshivaraju/lorastudio/internal/jobs"
	"github.com/kiranshivaraju/lorastudio/internal/storage"
	"github.com/kiranshivaraju/lorastudio/internal/store"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	bootstrap := flag.Bool("bootstrap-admin-key", false,
		"mint an admin API key for the default account, print it and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(*bootstrap); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(bootstrapOnly bool) error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "bucket", cfg.Storage.Bucket)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	pgStore := store.NewPostgresStore(pool)

	if bootstrapOnly {
		return bootstrapAdminKey(ctx, pgStore, os.Stdout)
	}

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Connect object storage for training images
	images, err := storage.NewMinIOStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	if err := images.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	slog.Info("object storage connected", "endpoint", cfg.Storage.Endpoint, "bucket", cfg.Storage.Bucket)

	// 6. Job service and stale job reaper
	jobService := jobs.NewService(pgStore, redisCache, images,
		jobs.WithActiveRetention(cfg.Jobs.ActiveRetention))

	reaper := jobs.NewReaper(pgStore, jobService, cfg.Jobs.ReaperInterval, cfg.Jobs.StaleAfter)
	reaper.Start()
	defer reaper.Stop()

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": pgStore,
			"cache":    redisCache,
			"storage":  images,
		}),
		MeHandler:      handler.NewMeHandler(pgStore),
		UploadsHandler: handler.NewUploadsHandler(images),

		CreateJob:      handler.NewCreateJobHandler(jobService),
		ActiveJob:      handler.NewActiveJobHandler(jobService),
		ListJobs:       handler.NewListJobsHandler(jobService),
		GetJob:         handler.NewGetJobHandler(jobService),
		ReportProgress: handler.NewReportProgressHandler(jobService),

		CreateUserHandler: handler.NewCreateUserHandler(pgStore),
		CreateKeyHandler:  handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:   handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler:  handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// keyCreator is the part of the store bootstrapAdminKey needs.
type keyCreator interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// bootstrapAdminKey mints the first admin key for the seeded account and
// writes the raw key to out. It is the only way to get a key on a fresh
// database.
func bootstrapAdminKey(ctx context.Context, s keyCreator, out io.Writer) error {
	if _, err := s.GetUser(ctx, store.DefaultUserID); err != nil {
		return fmt.Errorf("load default user: %w", err)
	}

	gen, err := mw.GenerateKey()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    store.DefaultUserID,
		Name:      "bootstrap",
		KeyHash:   gen.Hash,
		KeyPrefix: gen.Prefix,
		Scopes:    []string{mw.ScopeTrain, mw.ScopeAdmin},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	slog.Info("bootstrap admin key created", "key_id", key.ID, "prefix", key.KeyPrefix)
	_, err = fmt.Fprintln(out, gen.Raw)
	return err
}
