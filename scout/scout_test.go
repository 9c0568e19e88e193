package scout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studyrag/index"
	"studyrag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	mu       sync.Mutex
	chunks   []types.ScoredChunk
	err      error
	filtered int
	plain    int
}

func (r *fakeRetriever) Search(_ context.Context, _ string, topK int, filter index.Filter) ([]types.ScoredChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if filter != nil {
		r.filtered++
	} else {
		r.plain++
	}
	if r.err != nil {
		return nil, r.err
	}
	var out []types.ScoredChunk
	for _, c := range r.chunks {
		if filter == nil || filter(c.Chunk) {
			out = append(out, c)
		}
	}
	index.SortByScore(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

type stallingSearcher struct{}

func (stallingSearcher) Search(ctx context.Context, _ []float32, _ int) ([]types.ScoredChunk, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type unitEmbedder struct{}

func (unitEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func intp(n int) *int { return &n }

func scored(id string, chapter int, section types.SectionType, start, end int, score float64, text string) types.ScoredChunk {
	c := types.Chunk{ID: id, FileID: "book", PageStart: start, PageEnd: end, SectionType: section, Text: text}
	if chapter > 0 {
		c.ChapterNumber = intp(chapter)
	}
	return types.ScoredChunk{Chunk: c, Score: score}
}

func TestConsolidatePages(t *testing.T) {
	got := ConsolidatePages(SinglePages(10, 12, 13, 20, 21, 24), 3)
	assert.Equal(t, []types.PageRange{{10, 13}, {20, 21}, {24, 24}}, got)
}

func TestConsolidatePagesRanges(t *testing.T) {
	tests := []struct {
		name string
		in   []types.PageRange
		want []types.PageRange
	}{
		{"empty", nil, []types.PageRange{}},
		{"unsorted", []types.PageRange{{30, 31}, {5, 6}, {7, 9}}, []types.PageRange{{5, 9}, {30, 31}}},
		{"overlap", []types.PageRange{{5, 12}, {8, 10}}, []types.PageRange{{5, 12}}},
		{"reversed", []types.PageRange{{9, 7}}, []types.PageRange{{7, 9}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConsolidatePages(tt.in, 3))
		})
	}
}

func TestExtractProblems(t *testing.T) {
	chunks := []types.ScoredChunk{
		scored("p1", 2, types.SectionProblems, 40, 41, 0.9,
			"Problem 2.3 Show that the series converges. Exercise 4 is optional. problem 2.3 again."),
		scored("p2", 2, types.SectionProblems, 42, 42, 0.8, "Challenges 7.1.2: derive the bound."),
	}

	refs := ExtractProblems(chunks, 21)
	require.Len(t, refs, 3)
	assert.Equal(t, "Problem 2.3", refs[0].Label)
	assert.Equal(t, 40, refs[0].Page)
	assert.Equal(t, "Problem 2.3 Show that...", refs[0].Snippet)
	assert.Equal(t, "Exercise 4", refs[1].Label)
	assert.Equal(t, "Challenge 7.1.2", refs[2].Label)
	assert.Equal(t, 42, refs[2].Page)
}

func TestExtractKeyTerms(t *testing.T) {
	chunks := []types.ScoredChunk{
		scored("a", 1, types.SectionExplanation, 1, 1, 0.9,
			"The Fourier Transform maps signals. We use the Fourier Transform and Laplace Transform."),
		scored("b", 1, types.SectionExplanation, 2, 2, 0.85,
			"Laplace Transform tables help. The Fourier Transform again. In Chapter Two we begin."),
	}

	terms := ExtractKeyTerms(chunks, 8)
	assert.Equal(t, []string{"Fourier Transform", "Laplace Transform"}, terms)
}

func TestEnrichTopic(t *testing.T) {
	r := &fakeRetriever{chunks: []types.ScoredChunk{
		scored("e1", 3, types.SectionExplanation, 10, 10, 0.92, "The Bayes Theorem relates conditional probabilities."),
		scored("e2", 3, types.SectionExplanation, 12, 13, 0.88, "Bayes Theorem in practice."),
		scored("e3", 3, types.SectionExplanation, 20, 21, 0.80, "Prior Distribution choice."),
		scored("p1", 3, types.SectionProblems, 30, 30, 0.75, "Problem 3.1 Compute the posterior."),
		scored("low", 3, types.SectionExplanation, 50, 50, 0.40, "Unrelated Topic Here."),
	}}
	e := NewEnricher(r, DefaultConfig(), nil)

	got, diag := e.EnrichTopic(context.Background(), types.Topic{ExamID: "exam_1", Chapter: 3, Bullet: "Bayes theorem"})
	require.NoError(t, diag.Err)
	assert.False(t, diag.UsedFallback)
	assert.Equal(t, 4, diag.Survivors)
	assert.Equal(t, "book", got.ReadingPages.FileID)
	assert.Equal(t, []types.PageRange{{10, 13}, {20, 21}}, got.ReadingPages.PageRanges)
	require.Len(t, got.PracticeProblems, 1)
	assert.Equal(t, 30, got.PracticeProblems[0].Page)
	assert.Equal(t, "Bayes Theorem", got.KeyTerms[0])
	assert.InDelta(t, (0.92+0.88+0.80+0.75)/4, got.ConfidenceScore, 1e-9)
}

func TestEnrichTopicBelowMinScoreIsZeroConfidence(t *testing.T) {
	r := &fakeRetriever{chunks: []types.ScoredChunk{
		scored("a", 1, types.SectionExplanation, 1, 2, 0.69, "Weak Match."),
		scored("b", 1, types.SectionProblems, 3, 3, 0.5, "Problem 1.1"),
		scored("c", 1, types.SectionExplanation, 4, 4, 0.2, "Weaker Match."),
	}}
	e := NewEnricher(r, DefaultConfig(), nil)

	got, diag := e.EnrichTopic(context.Background(), types.Topic{Chapter: 1, Bullet: "anything"})
	require.NoError(t, diag.Err)
	assert.Zero(t, got.ConfidenceScore)
	assert.Empty(t, got.ReadingPages.PageRanges)
	assert.Empty(t, got.PracticeProblems)
	assert.Empty(t, got.KeyTerms)
	assert.NotNil(t, got.KeyTerms)
}

func TestEnrichTopicFallsBackWhenChapterIsSparse(t *testing.T) {
	r := &fakeRetriever{chunks: []types.ScoredChunk{
		scored("a", 5, types.SectionExplanation, 1, 1, 0.9, "x"),
		scored("b", 5, types.SectionExplanation, 2, 2, 0.85, "x"),
		scored("c", 6, types.SectionExplanation, 3, 3, 0.8, "x"),
		scored("d", 7, types.SectionExplanation, 4, 4, 0.8, "x"),
	}}
	e := NewEnricher(r, DefaultConfig(), nil)

	_, diag := e.EnrichTopic(context.Background(), types.Topic{Chapter: 5, Bullet: "topic"})
	assert.True(t, diag.UsedFallback)
	assert.Equal(t, 1, r.filtered)
	assert.Equal(t, 1, r.plain)
	assert.Equal(t, 4, diag.Candidates)
}

func TestEnrichTopicWithoutChapterSkipsFilter(t *testing.T) {
	r := &fakeRetriever{}
	e := NewEnricher(r, DefaultConfig(), nil)

	_, diag := e.EnrichTopic(context.Background(), types.Topic{Bullet: "topic"})
	assert.False(t, diag.UsedFallback)
	assert.Equal(t, 0, r.filtered)
	assert.Equal(t, 1, r.plain)
}

func TestEnrichTopicRetrievalFailureDegrades(t *testing.T) {
	r := &fakeRetriever{err: index.ErrRetrievalUnavailable}
	e := NewEnricher(r, DefaultConfig(), nil)

	got, diag := e.EnrichTopic(context.Background(), types.Topic{Chapter: 2, Bullet: "topic"})
	assert.ErrorIs(t, diag.Err, index.ErrRetrievalUnavailable)
	assert.Zero(t, got.ConfidenceScore)
	assert.Empty(t, got.PracticeProblems)
	assert.Equal(t, "topic", got.Bullet)
}

func TestEnrichCoveragePreservesOrder(t *testing.T) {
	r := &fakeRetriever{chunks: []types.ScoredChunk{
		scored("a", 1, types.SectionExplanation, 1, 1, 0.9, "x"),
	}}
	e := NewEnricher(r, DefaultConfig(), nil)

	cov := types.ExamCoverage{
		ExamID:   "exam_1",
		ExamName: "Midterm",
		ExamDate: "2026-03-01",
		Topics: []types.ChapterTopics{
			{Chapter: 1, ChapterTitle: "Intro", Bullets: []string{"one", "two", "three"}},
			{Chapter: 2, ChapterTitle: "Next", Bullets: []string{"four", "five"}},
		},
	}
	got, report := e.EnrichCoverage(context.Background(), cov)
	require.Len(t, got.Topics, 5)
	for i, want := range []string{"one", "two", "three", "four", "five"} {
		assert.Equal(t, want, got.Topics[i].Bullet)
	}
	assert.Equal(t, "Midterm", got.ExamName)
	assert.Equal(t, 5, report.Topics)
	// no chapter has three chunks, so every topic falls back
	assert.Len(t, report.Fallbacks, 5)
	assert.Empty(t, report.Failures)
}

func TestEnrichCoverageReportsFailures(t *testing.T) {
	r := &fakeRetriever{err: errors.New("boom")}
	e := NewEnricher(r, DefaultConfig(), nil)

	cov := types.ExamCoverage{ExamID: "exam_1", Topics: []types.ChapterTopics{{Chapter: 1, Bullets: []string{"a", "b"}}}}
	got, report := e.EnrichCoverage(context.Background(), cov)
	require.Len(t, got.Topics, 2)
	assert.Len(t, report.Failures, 2)
	assert.Len(t, report.LowConfidence, 2)
}

func TestEnrichTopicTimeoutDegrades(t *testing.T) {
	opts := index.DefaultOptions()
	opts.Timeout = 50 * time.Millisecond
	opts.MaxRetries = 0
	ix := index.New(stallingSearcher{}, unitEmbedder{}, opts, nil)
	e := NewEnricher(ix, DefaultConfig(), nil)

	start := time.Now()
	got, diag := e.EnrichTopic(context.Background(), types.Topic{Chapter: 1, Bullet: "eigenvalues"})
	assert.Less(t, time.Since(start), time.Second)

	require.Error(t, diag.Err)
	assert.ErrorIs(t, diag.Err, index.ErrRetrievalUnavailable)
	assert.Zero(t, got.ConfidenceScore)
	assert.Empty(t, got.ReadingPages.PageRanges)
	assert.Empty(t, got.PracticeProblems)
	assert.Empty(t, got.KeyTerms)
}

func TestEnrichCoverageStoresReportCounts(t *testing.T) {
	r := &fakeRetriever{chunks: []types.ScoredChunk{
		scored("a", 1, types.SectionExplanation, 1, 1, 0.9, "x"),
	}}
	e := NewEnricher(r, DefaultConfig(), nil)
	cov := types.ExamCoverage{ExamID: "exam_1", Topics: []types.ChapterTopics{{Chapter: 1, Bullets: []string{"a", "b"}}}}

	got, report := e.EnrichCoverage(context.Background(), cov)
	assert.Equal(t, []string{"a", "b"}, got.Fallbacks)
	assert.Empty(t, got.Failures)
	assert.Equal(t, report, StoredReport(got))

	r.err = errors.New("boom")
	got, report = e.EnrichCoverage(context.Background(), cov)
	require.Len(t, got.Failures, 2)
	assert.Equal(t, "boom", got.Failures[0].Error)

	stored := StoredReport(got)
	require.Len(t, stored.Failures, 2)
	assert.Equal(t, "a", stored.Failures[0].Bullet)
	assert.EqualError(t, stored.Failures[0].Err, "boom")
	assert.Equal(t, report.LowConfidence, stored.LowConfidence)
	assert.Equal(t, 2, stored.Topics)
}
