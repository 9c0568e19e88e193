package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"studyrag/loader/internal"
	"studyrag/model"
	"studyrag/types"

	"golang.org/x/sync/errgroup"
)

type ChunkWriter interface {
	ReplaceChunks(ctx context.Context, chunks []types.Chunk) error
}

type cacheStats interface {
	Stats() (hits, misses int64)
}

type Stats struct {
	Files       int
	Chunks      int
	CacheHits   int64
	CacheMisses int64
	Duration    time.Duration
}

// Service rebuilds the vector index from chunk records.
type Service struct {
	logger      *slog.Logger
	store       ChunkWriter
	embedder    model.EmbedderInterface
	counter     model.TokenCounter
	concurrency int

	// a rebuild replaces the whole index, so only one may run at a time
	mu sync.Mutex
}

func New(store ChunkWriter, embedder model.EmbedderInterface, counter model.TokenCounter, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		logger:      slog.Default(),
		store:       store,
		embedder:    embedder,
		counter:     counter,
		concurrency: concurrency,
	}
}

// Run loads every chunk file in dir and rebuilds the index from them.
func (s *Service) Run(ctx context.Context, dir string) (Stats, error) {
	chunks, files, err := internal.ReadChunkDir(dir)
	if err != nil {
		return Stats{}, fmt.Errorf("load chunks: %w", err)
	}
	s.logger.Info("chunk records loaded", "dir", dir, "files", files, "chunks", len(chunks))

	stats, err := s.Rebuild(ctx, chunks)
	stats.Files = files
	return stats, err
}

// Rebuild embeds every chunk and replaces the index with them. Identical
// chunk text reuses the cached embedding.
func (s *Service) Rebuild(ctx context.Context, chunks []types.Chunk) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	hits0, misses0 := s.cacheStats()

	out := make([]types.Chunk, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			if c.TokenCount == 0 && s.counter != nil {
				c.TokenCount = s.counter.CountTokens(c.Text)
			}
			vec, err := s.embedder.Embed(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", c.ID, err)
			}
			c.Embedding = model.Normalize(vec)
			out[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	if err := s.store.ReplaceChunks(ctx, out); err != nil {
		return Stats{}, fmt.Errorf("replace chunks: %w", err)
	}

	hits1, misses1 := s.cacheStats()
	stats := Stats{
		Chunks:      len(out),
		CacheHits:   hits1 - hits0,
		CacheMisses: misses1 - misses0,
		Duration:    time.Since(start),
	}
	s.logger.Info("index rebuilt",
		"chunks", stats.Chunks,
		"cache_hits", stats.CacheHits,
		"cache_misses", stats.CacheMisses,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

func (s *Service) cacheStats() (int64, int64) {
	if cs, ok := s.embedder.(cacheStats); ok {
		return cs.Stats()
	}
	return 0, 0
}
