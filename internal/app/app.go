// Package app wires the components shared by the API and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dodoapp/lullaby-backend/internal/cache"
	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/database"
	"github.com/dodoapp/lullaby-backend/internal/fallback"
	"github.com/dodoapp/lullaby-backend/internal/generation"
	"github.com/dodoapp/lullaby-backend/internal/lyrics"
	"github.com/dodoapp/lullaby-backend/internal/metrics"
	"github.com/dodoapp/lullaby-backend/internal/poller"
	"github.com/dodoapp/lullaby-backend/internal/provider/elevenlabs"
	"github.com/dodoapp/lullaby-backend/internal/provider/suno"
	"github.com/dodoapp/lullaby-backend/internal/storage"
	"github.com/dodoapp/lullaby-backend/internal/store"
)

type App struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Cache   *cache.Cache
	Store   store.Store
	Blobs   storage.Storage
	Metrics *metrics.Metrics

	Voice     *elevenlabs.Client
	Music     *suno.Client
	Generator *generation.Generator
}

// New connects to Postgres and Redis, applies migrations and builds the
// generation pipeline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, db, os.DirFS(cfg.Database.MigrationsPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable at startup", "addr", cfg.Redis.Addr, "error", err)
	}

	blobs, err := storage.New(cfg.Storage)
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, err
	}
	if ms, ok := blobs.(*storage.MinioStorage); ok {
		if err := ms.EnsureBucket(ctx); err != nil {
			db.Close()
			rdb.Close()
			return nil, err
		}
	}

	a := &App{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		Cache:   cache.NewCache(rdb),
		Store:   store.NewPostgres(db),
		Blobs:   blobs,
		Metrics: metrics.NewDefault(),
		Voice:   elevenlabs.NewClient(cfg.ElevenLabs),
		Music:   suno.NewClient(cfg.Suno),
	}

	strategy, err := generation.NewStrategy(cfg.Suno.Mode, a.Voice, a.Music)
	if err != nil {
		a.Close()
		return nil, err
	}

	p := poller.New(cfg.Polling.Interval, cfg.Polling.MaxAttempts, cfg.Polling.MaxCheckErrors)
	p.Observe = a.Metrics.PollCheck

	a.Generator = generation.NewGenerator(generation.GeneratorDeps{
		Store:        a.Store,
		Blobs:        a.Blobs,
		Strategy:     strategy,
		Music:        a.Music,
		Fallback:     fallback.New(cfg.Fallback),
		Lyrics:       lyrics.New(cfg.Lyrics),
		Poller:       p,
		PollRounds:   cfg.Polling.Rounds,
		SignedURLTTL: cfg.Storage.SignedURLTTL,
		Metrics:      a.Metrics,
	})

	slog.Info("pipeline ready",
		"storage", cfg.Storage.Backend,
		"generation_mode", strategy.Name(),
		"clone_policy", cfg.ElevenLabs.ClonePolicy,
		"poll_interval", cfg.Polling.Interval,
		"poll_attempts", cfg.Polling.MaxAttempts,
	)
	return a, nil
}

// TaskTimeout bounds one pipeline run: every polling round plus headroom for
// submission, download and upload.
func (a *App) TaskTimeout() time.Duration {
	rounds := a.Config.Polling.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	return time.Duration(rounds*a.Config.Polling.MaxAttempts)*a.Config.Polling.Interval + 10*time.Minute
}

// Recover reschedules every lullaby the ledger still lists as unfinished.
func (a *App) Recover(ctx context.Context, sched generation.Scheduler) {
	n, err := generation.Recover(ctx, a.Store, sched)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, generation.ErrStopped):
		slog.Info("recovery sweep interrupted by shutdown", "rescheduled", n)
		return
	case err != nil:
		slog.Error("recovery sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("recovery sweep rescheduled lullabies", "count", n)
	}
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		slog.Warn("close redis", "error", err)
	}
	a.DB.Close()
}
