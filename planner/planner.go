package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"studyrag/types"

	"github.com/google/uuid"
)

type PlanRequest struct {
	ExamIDs       []string
	Start         types.Date
	End           types.Date
	MinutesPerDay int
	Strategy      Strategy
}

func (r PlanRequest) options() Options {
	return Options{
		Start:         r.Start,
		End:           r.End,
		MinutesPerDay: r.MinutesPerDay,
		Strategy:      r.Strategy,
	}
}

// Planner turns enriched coverages into a study plan.
type Planner struct {
	scheduler *Scheduler
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

func New(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		scheduler: NewScheduler(),
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// WithIDFunc sets the plan id generator.
func (p *Planner) WithIDFunc(fn func() string) *Planner {
	p.newID = fn
	return p
}

// WithClock sets the clock used for created_at.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// Generate selects the requested exams from coverages (in request order),
// schedules every topic and returns a new plan. Exams without coverage are
// skipped with a warning. Invalid dates or budget abort before scheduling.
func (p *Planner) Generate(ctx context.Context, coverages []types.EnrichedCoverage, req PlanRequest) (types.StudyPlan, error) {
	opts := req.options()
	if err := opts.Validate(); err != nil {
		return types.StudyPlan{}, err
	}

	byID := make(map[string]types.EnrichedCoverage, len(coverages))
	for _, c := range coverages {
		byID[c.ExamID] = c
	}

	var (
		selected []types.EnrichedCoverage
		warnings []string
		seen     = make(map[string]struct{})
	)
	for _, id := range req.ExamIDs {
		id = types.NormalizeExamID(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		c, ok := byID[id]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no enriched coverage for exam %s; exam skipped", id))
			p.logger.Warn("exam skipped, no enriched coverage", "exam_id", id)
			continue
		}
		selected = append(selected, c)
	}

	if err := ctx.Err(); err != nil {
		return types.StudyPlan{}, err
	}

	queue := BuildQueue(selected)
	days, err := p.scheduler.Schedule(queue, opts)
	if err != nil {
		return types.StudyPlan{}, err
	}

	plan := types.StudyPlan{
		PlanID:    p.newID(),
		CreatedAt: p.now().UTC(),
		Exams:     queue.Exams(),
		TotalDays: len(days),
		Strategy:  string(opts.Strategy),
		StartDate: opts.Start,
		EndDate:   opts.End,
		Days:      days,
	}

	beyond := 0
	for _, d := range days {
		plan.TotalStudyMinutes += d.TotalMinutes
		if d.BeyondEndDate {
			beyond++
		}
		for _, b := range d.Blocks {
			if b.LowConfidence {
				warnings = append(warnings, fmt.Sprintf("low confidence (%.2f) for %s chapter %d: %s",
					b.ConfidenceScore, b.ExamID, b.Chapter, b.Topic))
			}
		}
	}
	if beyond > 0 {
		warnings = append(warnings, fmt.Sprintf("plan runs %d day(s) past the end date %s", beyond, opts.End))
	}
	plan.Warnings = warnings

	p.logger.Info("study plan generated",
		"plan_id", plan.PlanID,
		"exams", len(plan.Exams),
		"topics", plan.TotalTopics(),
		"days", plan.TotalDays,
		"strategy", plan.Strategy,
		"warnings", len(warnings))

	return plan, nil
}
