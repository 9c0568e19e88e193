package scout

import (
	"context"

	"studyrag/index"
	"studyrag/types"
)

// Retriever is the text-query side of the vector index.
type Retriever interface {
	Search(ctx context.Context, queryText string, topK int, filter index.Filter) ([]types.ScoredChunk, error)
}

type SearchResult struct {
	Candidates   []types.ScoredChunk
	UsedFallback bool
}

type SearchStrategy interface {
	Run(ctx context.Context, r Retriever, query string, topK int) (SearchResult, error)
}

// FilteredSearch restricts retrieval to one chapter.
type FilteredSearch struct {
	Chapter int
}

func (s FilteredSearch) Run(ctx context.Context, r Retriever, query string, topK int) (SearchResult, error) {
	res, err := r.Search(ctx, query, topK, index.ChapterFilter(s.Chapter))
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Candidates: res}, nil
}

// UnfilteredSearch searches the whole index.
type UnfilteredSearch struct{}

func (UnfilteredSearch) Run(ctx context.Context, r Retriever, query string, topK int) (SearchResult, error) {
	res, err := r.Search(ctx, query, topK, nil)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Candidates: res}, nil
}

// ChapterFirst runs a FilteredSearch for topics with a chapter and falls back
// to an UnfilteredSearch over the same query when it yields fewer than
// MinResults candidates.
type ChapterFirst struct {
	Chapter    int
	Enabled    bool
	MinResults int
}

func (s ChapterFirst) Run(ctx context.Context, r Retriever, query string, topK int) (SearchResult, error) {
	if !s.Enabled || s.Chapter <= 0 {
		return UnfilteredSearch{}.Run(ctx, r, query, topK)
	}

	filtered, err := FilteredSearch{Chapter: s.Chapter}.Run(ctx, r, query, topK)
	if err != nil {
		return SearchResult{}, err
	}
	if len(filtered.Candidates) >= s.MinResults {
		return filtered, nil
	}

	res, err := UnfilteredSearch{}.Run(ctx, r, query, topK)
	if err != nil {
		return SearchResult{}, err
	}
	res.UsedFallback = true
	return res, nil
}
