package service

import (
	"context"
	"errors"
	"log/slog"

	"studyrag/config"
	"studyrag/index"
	"studyrag/model"
	"studyrag/planner"
	"studyrag/scout"
	"studyrag/store"
)

// App is a Service wired to Postgres, the SQLite embedding cache and Ollama.
type App struct {
	Service  *Service
	Chunks   store.ChunkStore
	Defaults PlanDefaults

	closers []func() error
}

// Open connects the stores and builds the retrieval and planning stack from cfg.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN(), cfg.Embedding.Dim)
	if err != nil {
		return nil, err
	}
	if err := pool.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	cache, err := store.NewSQLiteCache(cfg.Embedding.CachePath)
	if err != nil {
		pool.Close()
		return nil, err
	}

	retry := model.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Retrieval.MaxRetries
	embedder := model.NewCachedEmbedder(
		model.NewOllamaEmbedder(cfg.Embedding.URL, cfg.Embedding.Model),
		cache, cfg.Embedding.Model, retry, logger)

	opts := index.DefaultOptions()
	opts.MaxRetries = cfg.Retrieval.MaxRetries
	opts.Timeout = cfg.Retrieval.Timeout
	opts.OverFetch = cfg.Retrieval.OverFetch
	ix := index.New(pool, embedder, opts, logger)

	scoutCfg := scout.DefaultConfig()
	scoutCfg.TopK = cfg.Scout.TopK
	scoutCfg.MinScore = cfg.Scout.MinScore
	scoutCfg.UseChapterFilter = cfg.Scout.ChapterFilter
	scoutCfg.Concurrency = cfg.Scout.Concurrency

	svc := New(pool, pool, ix, scout.NewEnricher(ix, scoutCfg, logger), planner.New(logger))
	svc.logger = logger

	return &App{
		Service: svc,
		Chunks:  pool,
		Defaults: PlanDefaults{
			MinutesPerDay: cfg.Plan.MinutesPerDay,
			Strategy:      cfg.Plan.Strategy,
		},
		closers: []func() error{cache.Close, pool.Close},
	}, nil
}

func (a *App) Close() error {
	var errs []error
	for _, fn := range a.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}
