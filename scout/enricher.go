package scout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"studyrag/types"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	TopK               int
	MinScore           float64
	MinFilteredResults int
	UseChapterFilter   bool
	PageMergeGap       int
	MaxKeyTerms        int
	KeyTermChunks      int
	SnippetLength      int
	Concurrency        int
}

func DefaultConfig() Config {
	return Config{
		TopK:               10,
		MinScore:           0.7,
		MinFilteredResults: 3,
		UseChapterFilter:   true,
		PageMergeGap:       3,
		MaxKeyTerms:        8,
		KeyTermChunks:      3,
		SnippetLength:      120,
		Concurrency:        4,
	}
}

// Diagnostics describes how a single topic was enriched.
type Diagnostics struct {
	Topic        types.Topic
	UsedFallback bool
	Candidates   int
	Survivors    int
	Err          error
}

// Report summarizes the enrichment of one coverage.
type Report struct {
	ExamID        string
	Topics        int
	Fallbacks     []string
	Failures      []TopicFailure
	LowConfidence []string
}

type TopicFailure struct {
	Bullet string
	Err    error
}

type Enricher struct {
	retriever Retriever
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewEnricher(r Retriever, cfg Config, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Enricher{
		retriever: r,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock sets the clock used for GeneratedAt.
func (e *Enricher) WithClock(now func() time.Time) *Enricher {
	e.now = now
	return e
}

// EnrichTopic maps a topic onto textbook evidence. It never fails: a
// retrieval error yields empty evidence with zero confidence and is
// reported through Diagnostics.Err.
func (e *Enricher) EnrichTopic(ctx context.Context, topic types.Topic) (types.EnrichedTopic, Diagnostics) {
	diag := Diagnostics{Topic: topic}
	out := emptyEnrichment(topic)

	query := strings.TrimSpace(topic.Bullet)
	strategy := ChapterFirst{
		Chapter:    topic.Chapter,
		Enabled:    e.cfg.UseChapterFilter,
		MinResults: e.cfg.MinFilteredResults,
	}

	res, err := strategy.Run(ctx, e.retriever, query, e.cfg.TopK)
	if err != nil {
		diag.Err = err
		e.logger.Warn("topic degraded to zero confidence",
			"exam_id", topic.ExamID, "chapter", topic.Chapter, "topic", topic.Bullet, "error", err)
		return out, diag
	}
	diag.UsedFallback = res.UsedFallback
	diag.Candidates = len(res.Candidates)
	if res.UsedFallback {
		e.logger.Info("chapter filter fallback",
			"exam_id", topic.ExamID, "chapter", topic.Chapter, "topic", topic.Bullet)
	}

	var survivors []types.ScoredChunk
	for _, c := range res.Candidates {
		if c.Score >= e.cfg.MinScore {
			survivors = append(survivors, c)
		}
	}
	diag.Survivors = len(survivors)
	if len(survivors) == 0 {
		return out, diag
	}

	var explanations, problems []types.ScoredChunk
	for _, c := range survivors {
		switch c.SectionType {
		case types.SectionExplanation:
			explanations = append(explanations, c)
		case types.SectionProblems:
			problems = append(problems, c)
		}
	}

	out.ReadingPages = e.readingPages(explanations)
	out.PracticeProblems = ExtractProblems(problems, e.cfg.SnippetLength)

	top := survivors
	if len(top) > e.cfg.KeyTermChunks {
		top = top[:e.cfg.KeyTermChunks]
	}
	out.KeyTerms = ExtractKeyTerms(top, e.cfg.MaxKeyTerms)

	var sum float64
	for _, c := range survivors {
		sum += c.Score
	}
	out.ConfidenceScore = clamp01(sum / float64(len(survivors)))
	return out, diag
}

// readingPages consolidates the pages of the explanation chunks that come
// from the same file as the best-scoring one.
func (e *Enricher) readingPages(explanations []types.ScoredChunk) types.ReadingPages {
	if len(explanations) == 0 {
		return types.ReadingPages{PageRanges: []types.PageRange{}}
	}
	primary := explanations[0].FileID

	var ranges []types.PageRange
	for _, c := range explanations {
		if c.FileID == primary {
			ranges = append(ranges, types.PageRange{c.PageStart, c.PageEnd})
		}
	}
	return types.ReadingPages{
		FileID:     primary,
		PageRanges: ConsolidatePages(ranges, e.cfg.PageMergeGap),
	}
}

// EnrichCoverage enriches every topic of the coverage. Topics are retrieved
// in parallel; the output keeps coverage order.
func (e *Enricher) EnrichCoverage(ctx context.Context, cov types.ExamCoverage) (types.EnrichedCoverage, Report) {
	topics := cov.TopicList()
	enriched := make([]types.EnrichedTopic, len(topics))
	diags := make([]Diagnostics, len(topics))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, t := range topics {
		i, t := i, t
		g.Go(func() error {
			enriched[i], diags[i] = e.EnrichTopic(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{ExamID: cov.ExamID, Topics: len(topics)}
	for i, d := range diags {
		if d.UsedFallback {
			report.Fallbacks = append(report.Fallbacks, d.Topic.Bullet)
		}
		if d.Err != nil {
			report.Failures = append(report.Failures, TopicFailure{Bullet: d.Topic.Bullet, Err: d.Err})
		}
		if enriched[i].ConfidenceScore < types.WarningConfidence {
			report.LowConfidence = append(report.LowConfidence, d.Topic.Bullet)
		}
	}

	e.logger.Info("coverage enriched",
		"exam_id", cov.ExamID,
		"topics", len(topics),
		"fallbacks", len(report.Fallbacks),
		"failures", len(report.Failures),
		"low_confidence", len(report.LowConfidence))

	out := types.EnrichedCoverage{
		ExamID:      cov.ExamID,
		ExamName:    cov.ExamName,
		ExamDate:    cov.ExamDate,
		Topics:      enriched,
		GeneratedAt: e.now().UTC(),
		Fallbacks:   report.Fallbacks,
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, types.EnrichmentFailure{Bullet: f.Bullet, Error: f.Err.Error()})
	}
	return out, report
}

// StoredReport rebuilds the report of a previously stored enrichment.
func StoredReport(c types.EnrichedCoverage) Report {
	report := Report{
		ExamID:    c.ExamID,
		Topics:    len(c.Topics),
		Fallbacks: c.Fallbacks,
	}
	for _, f := range c.Failures {
		report.Failures = append(report.Failures, TopicFailure{Bullet: f.Bullet, Err: errors.New(f.Error)})
	}
	for _, t := range c.Topics {
		if t.ConfidenceScore < types.WarningConfidence {
			report.LowConfidence = append(report.LowConfidence, t.Bullet)
		}
	}
	return report
}

func emptyEnrichment(topic types.Topic) types.EnrichedTopic {
	return types.EnrichedTopic{
		Topic:            topic,
		ReadingPages:     types.ReadingPages{PageRanges: []types.PageRange{}},
		PracticeProblems: []types.ProblemRef{},
		KeyTerms:         []string{},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
