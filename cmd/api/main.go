package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/dodoapp/lullaby-backend/internal/api"
	"github.com/dodoapp/lullaby-backend/internal/api/handlers"
	"github.com/dodoapp/lullaby-backend/internal/app"
	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/generation"
	"github.com/dodoapp/lullaby-backend/internal/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Pipelines started in process outlive the request but not shutdown.
	pipelines, cancelPipelines := context.WithCancel(context.Background())
	defer cancelPipelines()
	inline := generation.NewInlineScheduler(pipelines, a.Generator)

	var scheduler generation.Scheduler = inline
	var backup generation.Scheduler
	if cfg.Dispatch.Mode == config.DispatchQueue {
		qc := queue.NewClient(cfg.Redis, a.TaskTimeout())
		defer qc.Close()
		scheduler, backup = qc, inline
	} else {
		go a.Recover(pipelines, inline)
	}

	rlStore, err := sredis.NewStoreWithOptions(a.Redis, limiter.StoreOptions{Prefix: "dodo:ratelimit"})
	if err != nil {
		slog.Error("rate limit store", "error", err)
		os.Exit(1)
	}

	router, err := api.NewRouter(api.Deps{
		Store:          a.Store,
		Voices:         generation.NewVoiceService(a.Store, a.Blobs, a.Voice, cfg.ElevenLabs, a.Metrics),
		Lullabies:      generation.NewLullabyService(a.Store, scheduler, backup, a.Metrics),
		Metrics:        a.Metrics,
		Idempotency:    a.Cache,
		RateLimitStore: rlStore,
		Health: map[string]handlers.Pinger{
			"database": a.DB,
			"redis":    a.Cache,
		},
		HTTP: cfg.HTTP,
	})
	if err != nil {
		slog.Error("invalid HTTP config", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "dispatch", cfg.Dispatch.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}

	// Unfinished pipelines keep their ledger entry and resume on next start.
	cancelPipelines()
	inline.Stop()
	slog.Info("server stopped")
}
