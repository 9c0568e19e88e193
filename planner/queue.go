package planner

import (
	"sort"

	"studyrag/types"
)

const (
	baseMinutes         = 30
	manyProblemsMinutes = 20
	foundationMinutes   = 15
	weakEvidenceMinutes = 10

	foundationChapters = 3
	weakEvidenceBelow  = 0.7
)

// EstimateMinutes returns the study time for one enriched topic.
func EstimateMinutes(t types.EnrichedTopic) int {
	minutes := baseMinutes
	if len(t.PracticeProblems) > 2 {
		minutes += manyProblemsMinutes
	}
	if t.Chapter >= 1 && t.Chapter <= foundationChapters {
		minutes += foundationMinutes
	}
	if t.ConfidenceScore < weakEvidenceBelow {
		minutes += weakEvidenceMinutes
	}
	return minutes
}

// ExamQueue holds one exam's tasks in chapter/topic order.
type ExamQueue struct {
	Exam  types.PlanExam
	Tasks []types.ScheduledTask
}

// Queue is the merged work queue, one ExamQueue per exam in input order.
// Which exam is pulled next is decided by the scheduling strategy.
type Queue []ExamQueue

func (q Queue) Len() int {
	n := 0
	for _, e := range q {
		n += len(e.Tasks)
	}
	return n
}

func (q Queue) Exams() []types.PlanExam {
	out := make([]types.PlanExam, len(q))
	for i, e := range q {
		out[i] = e.Exam
	}
	return out
}

// BuildQueue merges the enriched coverages into a work queue.
func BuildQueue(coverages []types.EnrichedCoverage) Queue {
	priorities := ExamPriorities(coverages)

	q := make(Queue, len(coverages))
	for i, cov := range coverages {
		exam := types.PlanExam{
			ExamID:   cov.ExamID,
			ExamName: cov.ExamName,
			ExamDate: cov.ExamDate,
			Priority: priorities[i],
		}
		tasks := make([]types.ScheduledTask, len(cov.Topics))
		for j, t := range cov.Topics {
			tasks[j] = types.ScheduledTask{
				EnrichedTopic:    t,
				ExamID:           cov.ExamID,
				Seq:              j,
				EstimatedMinutes: EstimateMinutes(t),
				Priority:         priorities[i],
			}
		}
		q[i] = ExamQueue{Exam: exam, Tasks: tasks}
	}
	return q
}

// ExamPriorities ranks exams by date: the earliest exam gets len(coverages),
// the latest gets 1. Exams without a parseable date rank last and ties keep
// input order.
func ExamPriorities(coverages []types.EnrichedCoverage) []int {
	type ranked struct {
		idx  int
		date types.Date
	}
	order := make([]ranked, len(coverages))
	for i, c := range coverages {
		d, err := types.ParseDate(c.ExamDate)
		if err != nil {
			d = types.Date{}
		}
		order[i] = ranked{idx: i, date: d}
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i].date, order[j].date
		switch {
		case a.IsZero() && b.IsZero():
			return false
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		}
		return a.Before(b)
	})

	priorities := make([]int, len(coverages))
	for rank, r := range order {
		priorities[r.idx] = len(coverages) - rank
	}
	return priorities
}
