package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// EmbedderInterface creates embeddings for text.
type EmbedderInterface interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache stores embeddings by content hash. Implementations must
// tolerate concurrent Put of the same key: the values are identical.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key string, vec []float32) error
}

// ContentHash addresses an embedding by model and exact text.
func ContentHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// CachedEmbedder reuses embeddings for identical text and retries the
// underlying embedder on transient failures.
type CachedEmbedder struct {
	base   EmbedderInterface
	cache  EmbeddingCache
	model  string
	retry  RetryPolicy
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

func NewCachedEmbedder(base EmbedderInterface, cache EmbeddingCache, model string, retry RetryPolicy, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.Retryable == nil {
		retry.Retryable = IsTransient
	}
	return &CachedEmbedder{
		base:   base,
		cache:  cache,
		model:  model,
		retry:  retry,
		logger: logger,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := ContentHash(e.model, text)

	if e.cache != nil {
		vec, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("embedding cache read failed", "error", err)
		} else if ok {
			e.hits.Add(1)
			return vec, nil
		}
	}
	e.misses.Add(1)

	var vec []float32
	err := Retry(ctx, e.retry, func() error {
		v, err := e.base.Embed(ctx, text)
		if err != nil {
			e.logger.Debug("embedding attempt failed", "error", err)
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	Normalize(vec)

	if e.cache != nil {
		if err := e.cache.Put(ctx, key, vec); err != nil {
			e.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

// Stats returns cache hits and misses since creation.
func (e *CachedEmbedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}
