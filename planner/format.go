package planner

import (
	"fmt"
	"math"
	"strings"

	"studyrag/types"
)

const noEvidence = "none found"

// FormatPages renders reading pages as "file pp. 10-13, 20-21, 24".
func FormatPages(rp types.ReadingPages) string {
	if len(rp.PageRanges) == 0 {
		return noEvidence
	}
	parts := make([]string, len(rp.PageRanges))
	for i, r := range rp.PageRanges {
		if r[0] == r[1] {
			parts[i] = fmt.Sprintf("%d", r[0])
		} else {
			parts[i] = fmt.Sprintf("%d-%d", r[0], r[1])
		}
	}
	prefix := "pp."
	if len(parts) == 1 && rp.PageRanges[0][0] == rp.PageRanges[0][1] {
		prefix = "p."
	}
	s := prefix + " " + strings.Join(parts, ", ")
	if rp.FileID != "" {
		s = rp.FileID + " " + s
	}
	return s
}

// FormatProblems renders problem references as "Problem 3.1 (p. 30), ...".
func FormatProblems(refs []types.ProblemRef) string {
	if len(refs) == 0 {
		return noEvidence
	}
	parts := make([]string, len(refs))
	for i, r := range refs {
		label := r.Label
		if label == "" {
			label = r.Snippet
		}
		parts[i] = fmt.Sprintf("%s (p. %d)", label, r.Page)
	}
	return strings.Join(parts, ", ")
}

func RoundConfidence(v float64) float64 {
	return math.Round(v*100) / 100
}

// NewBlock renders a queued task as a plan block.
func NewBlock(t types.ScheduledTask) types.Block {
	terms := t.KeyTerms
	if terms == nil {
		terms = []string{}
	}
	return types.Block{
		ExamID:              t.ExamID,
		Chapter:             t.Chapter,
		ChapterTitle:        t.ChapterTitle,
		Topic:               t.Bullet,
		ReadingPages:        FormatPages(t.ReadingPages),
		PracticeProblems:    FormatProblems(t.PracticeProblems),
		KeyTerms:            terms,
		TimeEstimateMinutes: t.EstimatedMinutes,
		ConfidenceScore:     RoundConfidence(t.ConfidenceScore),
		LowConfidence:       t.ConfidenceScore < types.WarningConfidence,
	}
}
