// Package main is the entrypoint for the ClearOps API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/clearops/internal/api"
	"github.com/kiranshivaraju/clearops/internal/api/handler"
	mw "github.com/kiranshivaraju/clearops/internal/api/middleware"
	"github.com/kiranshivaraju/clearops/internal/api/response"
	"github.com/kiranshivaraju/clearops/internal/billing"
	"github.com/kiranshivaraju/clearops/internal/cache"
	"github.com/kiranshivaraju/clearops/internal/config"
	"github.com/kiranshivaraju/clearops/internal/dispatch"
	"github.com/kiranshivaraju/clearops/internal/geocode"
	"github.com/kiranshivaraju/clearops/internal/jobs"
	"github.com/kiranshivaraju/clearops/internal/notify"
	"github.com/kiranshivaraju/clearops/internal/sla"
	"github.com/kiranshivaraju/clearops/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "geocoder", cfg.Geocoder.Provider, "env", cfg.Server.Env)

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
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

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

	// 5. Geocoder, notifications and the job service
	geocoder, err := geocode.New(cfg.Geocoder, redisCache)
	if err != nil {
		return fmt.Errorf("create geocoder: %w", err)
	}
	slog.Info("geocoder initialized", "provider", geocoder.Name())

	notifier := newNotifier(cfg.Notify, redisCache)
	pgStore := store.NewPostgresStore(pool)

	svc := jobs.NewService(jobs.Deps{
		Store:         pgStore,
		Dispatcher:    dispatch.NewEngine(pgStore, notifier, redisCache).WithNotifyTimeout(cfg.Notify.Timeout),
		Geocoder:      geocoder,
		SLA:           sla.NewPolicy(pgStore, redisCache, cfg.SLA.UrgencyCacheTTL),
		Invoices:      billing.NewIssuer(pgStore),
		Notifier:      notifier,
		Cache:         redisCache,
		NotifyTimeout: cfg.Notify.Timeout,
	})

	// 6. Build router with dependencies
	jh := handler.NewJobs(svc)
	ch := handler.NewCrews(pgStore, geocoder)
	kh := handler.NewKeys(pgStore)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.PerMinute),

		HealthHandler:        healthHandler(pgStore, redisCache),
		UrgencyLevelsHandler: handler.NewUrgencyLevelsHandler(pgStore),

		CreateDraft:  jh.CreateDraft,
		GetDraft:     jh.GetDraft,
		ConfirmDraft: jh.ConfirmDraft,

		CreateJob:    jh.Create,
		ListJobs:     jh.List,
		GetJob:       jh.Get,
		JobStatus:    jh.Status,
		TrackJob:     jh.Track,
		ListPayments: jh.ListPayments,
		CancelJob:    jh.Cancel,
		RateJob:      jh.Rate,
		ApproveQuote: jh.ApproveQuote,
		DeclineQuote: jh.DeclineQuote,

		DispatchJob:   jh.Dispatch,
		SendQuote:     jh.SendQuote,
		AssignCrew:    jh.AssignCrew,
		AdvanceJob:    jh.Advance,
		CompleteJob:   jh.Complete,
		RecordPayment: jh.RecordPayment,

		UpsertCrew:       ch.Upsert,
		ListCrews:        ch.List,
		CreateKeyHandler: kh.Create,
		ListKeysHandler:  kh.List,
		RevokeKeyHandler: kh.Revoke,
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
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

// newNotifier appends notifications to a Redis stream when one is
// configured, and only logs them otherwise.
func newNotifier(cfg config.NotifyConfig, rc *cache.RedisCache) notify.Sender {
	if cfg.Stream == "" {
		slog.Info("notifications: log only")
		return notify.LogSender{}
	}
	slog.Info("notifications: redis stream", "stream", cfg.Stream)
	return notify.NewStreamSender(rc.Client(), cfg.Stream, cfg.MaxLen)
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
