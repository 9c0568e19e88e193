package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"studyrag/model"
	"studyrag/types"
)

var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// Searcher is a nearest-neighbour backend over normalized chunk embeddings.
// Results are ordered by descending score.
type Searcher interface {
	Search(ctx context.Context, queryVec []float32, limit int) ([]types.ScoredChunk, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Filter is a predicate over chunk attributes evaluated after retrieval.
type Filter func(types.Chunk) bool

func ChapterFilter(chapter int) Filter {
	return func(c types.Chunk) bool {
		return c.ChapterNumber != nil && *c.ChapterNumber == chapter
	}
}

// ChaptersFilter accepts chunks from any of the given chapters.
func ChaptersFilter(chapters ...int) Filter {
	set := make(map[int]struct{}, len(chapters))
	for _, ch := range chapters {
		set[ch] = struct{}{}
	}
	return func(c types.Chunk) bool {
		if c.ChapterNumber == nil {
			return false
		}
		_, ok := set[*c.ChapterNumber]
		return ok
	}
}

func FileFilter(fileID string) Filter {
	return func(c types.Chunk) bool {
		return c.FileID == fileID
	}
}

func And(filters ...Filter) Filter {
	return func(c types.Chunk) bool {
		for _, f := range filters {
			if f != nil && !f(c) {
				return false
			}
		}
		return true
	}
}

type Options struct {
	OverFetch  int
	MaxRetries int
	Timeout    time.Duration
	Retry      model.RetryPolicy
}

func DefaultOptions() Options {
	return Options{
		OverFetch:  4,
		MaxRetries: 3,
		Timeout:    10 * time.Second,
		Retry:      model.DefaultRetryPolicy(),
	}
}

// Index answers text queries against a Searcher backend.
type Index struct {
	backend  Searcher
	embedder Embedder
	opts     Options
	logger   *slog.Logger
}

func New(backend Searcher, embedder Embedder, opts Options, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OverFetch < 1 {
		opts.OverFetch = 1
	}
	opts.Retry.MaxRetries = opts.MaxRetries
	return &Index{
		backend:  backend,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
}

// Search embeds queryText and returns at most topK chunks accepted by filter,
// sorted by descending similarity with ties broken by chunk id. A nil filter
// searches the whole index. When a filter is set, topK*OverFetch candidates
// are fetched and filtered here.
func (ix *Index) Search(ctx context.Context, queryText string, topK int, filter Filter) ([]types.ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	ctx, cancel := ix.withTimeout(ctx)
	defer cancel()

	vec, err := ix.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrRetrievalUnavailable, err)
	}
	model.Normalize(vec)

	limit := topK
	if filter != nil {
		limit = topK * ix.opts.OverFetch
	}

	var candidates []types.ScoredChunk
	attempt := 0
	err = model.Retry(ctx, ix.opts.Retry, func() error {
		attempt++
		res, err := ix.backend.Search(ctx, vec, limit)
		if err != nil {
			ix.logger.Warn("index search failed", "attempt", attempt, "error", err)
			return err
		}
		candidates = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	out := candidates[:0:0]
	for _, c := range candidates {
		if filter == nil || filter(c.Chunk) {
			out = append(out, c)
		}
	}
	SortByScore(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (ix *Index) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ix.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ix.opts.Timeout)
}

// SortByScore orders chunks by descending score, then ascending id.
func SortByScore(chunks []types.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ID < chunks[j].ID
	})
}
