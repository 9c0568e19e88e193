package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"studyrag/index"
	"studyrag/planner"
	"studyrag/scout"
	"studyrag/store"
	"studyrag/types"
)

const (
	defaultSearchTopK     = 5
	defaultSearchMinScore = 0.5
	maxResultText         = 500
)

// Service ties coverage records, enrichment and planning together for the
// HTTP API and the CLI.
type Service struct {
	logger   *slog.Logger
	chunks   store.ChunkStore
	records  store.RecordStore
	search   scout.Retriever
	enricher *scout.Enricher
	planner  *planner.Planner
}

func New(chunks store.ChunkStore, records store.RecordStore, search scout.Retriever, enricher *scout.Enricher, p *planner.Planner) *Service {
	return &Service{
		logger:   slog.Default(),
		chunks:   chunks,
		records:  records,
		search:   search,
		enricher: enricher,
		planner:  p,
	}
}

// SaveCoverage normalizes and stores a coverage record. A stored enrichment
// built from different topics is stale from then on; Enrich, Analyze and
// CreatePlan regenerate it.
func (s *Service) SaveCoverage(ctx context.Context, cov types.ExamCoverage) (types.ExamCoverage, error) {
	cov.Normalize()
	if err := s.records.SaveCoverage(ctx, cov); err != nil {
		return cov, err
	}
	s.logger.Info("coverage saved", "exam_id", cov.ExamID, "topics", len(cov.TopicList()))
	return cov, nil
}

type EnrichResult struct {
	Coverage types.EnrichedCoverage
	Report   scout.Report
	Cached   bool
}

// Enrich returns the enriched coverage of an exam. A stored result is reused
// unless force is set or it is stale: built from other topics or exam
// details than the current coverage, or against an older index build.
func (s *Service) Enrich(ctx context.Context, examID string, force bool) (EnrichResult, error) {
	examID = types.NormalizeExamID(examID)

	cov, err := s.records.GetCoverage(ctx, examID)
	if err != nil {
		return EnrichResult{}, fmt.Errorf("coverage for exam %s: %w", examID, err)
	}
	version, err := s.chunks.IndexVersion(ctx)
	if err != nil {
		return EnrichResult{}, err
	}

	if !force {
		stored, reason, err := s.storedEnrichment(ctx, *cov, version)
		if err != nil {
			return EnrichResult{}, err
		}
		if stored != nil && reason == "" {
			return EnrichResult{Coverage: *stored, Report: scout.StoredReport(*stored), Cached: true}, nil
		}
		if stored != nil {
			s.logger.Info("regenerating stale enrichment", "exam_id", examID, "reason", reason)
		}
	}

	enriched, report := s.enricher.EnrichCoverage(ctx, *cov)
	enriched.IndexVersion = version
	if err := s.records.SaveEnriched(ctx, enriched); err != nil {
		return EnrichResult{}, err
	}
	return EnrichResult{Coverage: enriched, Report: report}, nil
}

// storedEnrichment loads the stored enrichment of cov's exam and says why it
// is stale. It returns nil when nothing is stored.
func (s *Service) storedEnrichment(ctx context.Context, cov types.ExamCoverage, version string) (*types.EnrichedCoverage, string, error) {
	enriched, err := s.records.GetEnriched(ctx, cov.ExamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return enriched, staleReason(*enriched, cov, version), nil
}

func staleReason(enriched types.EnrichedCoverage, cov types.ExamCoverage, version string) string {
	switch {
	case !enriched.Matches(cov):
		return "coverage changed"
	case enriched.IndexVersion != version:
		return "index rebuilt"
	}
	return ""
}

func (s *Service) Exams(ctx context.Context) ([]types.ExamSummary, error) {
	all, err := s.records.ListEnriched(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.ExamSummary, len(all))
	for i, c := range all {
		out[i] = types.SummarizeExam(c)
	}
	return out, nil
}

// Readiness lists what is missing before the given exams can be planned.
func (s *Service) Readiness(ctx context.Context, examIDs []string) (types.ReadinessResponse, error) {
	resp := types.ReadinessResponse{Missing: []types.MissingItem{}}

	n, err := s.chunks.CountChunks(ctx)
	if err != nil {
		return resp, err
	}
	if n == 0 {
		resp.Missing = append(resp.Missing, types.MissingItem{
			Type:    "index",
			Message: "vector index is empty; run the loader to build it",
		})
	}

	if resp.AvailableExams, err = s.Exams(ctx); err != nil {
		return resp, err
	}
	version, err := s.chunks.IndexVersion(ctx)
	if err != nil {
		return resp, err
	}

	for _, id := range examIDs {
		id = types.NormalizeExamID(id)
		cov, err := s.records.GetCoverage(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			resp.Missing = append(resp.Missing, types.MissingItem{
				Type:    "coverage",
				ExamID:  id,
				Message: fmt.Sprintf("no coverage for %s; upload the exam overview", id),
			})
			continue
		}
		if err != nil {
			return resp, err
		}

		stored, reason, err := s.storedEnrichment(ctx, *cov, version)
		if err != nil {
			return resp, err
		}
		switch {
		case stored == nil:
			resp.Missing = append(resp.Missing, types.MissingItem{
				Type:    "enrichment",
				ExamID:  id,
				Message: fmt.Sprintf("coverage for %s needs enrichment", id),
			})
		case reason != "":
			resp.Missing = append(resp.Missing, types.MissingItem{
				Type:    "enrichment",
				ExamID:  id,
				Message: fmt.Sprintf("enrichment for %s is stale (%s); enrich again", id, reason),
			})
		}
	}

	resp.Ready = len(resp.Missing) == 0
	if resp.Ready {
		resp.Message = "ready"
	} else {
		resp.Message = fmt.Sprintf("%d prerequisite(s) missing", len(resp.Missing))
	}
	return resp, nil
}

// enrichedFor loads the enriched coverage of each exam, regenerating stale
// ones first. With strict set, an exam never enriched is an error; otherwise
// it is left for the planner to report.
func (s *Service) enrichedFor(ctx context.Context, examIDs []string, strict bool) ([]types.EnrichedCoverage, error) {
	var out []types.EnrichedCoverage
	for _, id := range examIDs {
		id = types.NormalizeExamID(id)
		if _, err := s.records.GetEnriched(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) && !strict {
				continue
			}
			return nil, fmt.Errorf("enriched coverage for exam %s: %w", id, err)
		}
		res, err := s.Enrich(ctx, id, false)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Coverage)
	}
	return out, nil
}

func (s *Service) Analyze(ctx context.Context, req planner.PlanRequest) (planner.LoadAnalysis, error) {
	covs, err := s.enrichedFor(ctx, req.ExamIDs, true)
	if err != nil {
		return planner.LoadAnalysis{}, err
	}
	return planner.Analyze(covs, req.Start, req.End, req.MinutesPerDay)
}

// CreatePlan generates a plan and stores it. Nothing is stored when
// generation fails.
func (s *Service) CreatePlan(ctx context.Context, req planner.PlanRequest) (types.StudyPlan, error) {
	covs, err := s.enrichedFor(ctx, req.ExamIDs, false)
	if err != nil {
		return types.StudyPlan{}, err
	}

	plan, err := s.planner.Generate(ctx, covs, req)
	if err != nil {
		return types.StudyPlan{}, err
	}
	if err := s.records.SavePlan(ctx, plan); err != nil {
		return types.StudyPlan{}, err
	}
	return plan, nil
}

func (s *Service) Plan(ctx context.Context, planID string) (types.StudyPlan, error) {
	p, err := s.records.GetPlan(ctx, planID)
	if err != nil {
		return types.StudyPlan{}, fmt.Errorf("plan %s: %w", planID, err)
	}
	return *p, nil
}

// Search runs a free-text query against the textbook index, optionally
// scoped to a chapter, a file or the chapters of an exam.
func (s *Service) Search(ctx context.Context, params types.SearchParams) (types.SearchResponse, error) {
	topK := params.TopK
	if topK == 0 {
		topK = defaultSearchTopK
	}
	minScore := defaultSearchMinScore
	if params.MinScore != nil {
		minScore = *params.MinScore
	}

	var filters []index.Filter
	if params.ExamID != "" {
		cov, err := s.records.GetCoverage(ctx, types.NormalizeExamID(params.ExamID))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return types.SearchResponse{}, err
		}
		if cov != nil && len(cov.Chapters) > 0 {
			filters = append(filters, index.ChaptersFilter(cov.Chapters...))
		}
	}
	if params.FileID != "" {
		filters = append(filters, index.FileFilter(params.FileID))
	}
	if params.Chapter != nil {
		filters = append(filters, index.ChapterFilter(*params.Chapter))
	}
	var filter index.Filter
	if len(filters) > 0 {
		filter = index.And(filters...)
	}

	chunks, err := s.search.Search(ctx, params.Query, topK, filter)
	if err != nil {
		return types.SearchResponse{}, err
	}

	resp := types.SearchResponse{Query: params.Query, Results: []types.SearchResult{}}
	for _, c := range chunks {
		if c.Score < minScore {
			continue
		}
		resp.Results = append(resp.Results, types.SearchResult{
			ChunkID:   c.ID,
			FileID:    c.FileID,
			Text:      truncate(c.Text, maxResultText),
			PageStart: c.PageStart,
			PageEnd:   c.PageEnd,
			Chapter:   c.ChapterNumber,
			Section:   string(c.SectionType),
			Score:     c.Score,
		})
	}
	return resp, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
