package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"studyrag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	feb8  = types.NewDate(2026, time.February, 8)
	feb9  = types.NewDate(2026, time.February, 9)
	feb28 = types.NewDate(2026, time.February, 28)
)

func task(exam string, seq, minutes int, bullet string) types.ScheduledTask {
	return types.ScheduledTask{
		EnrichedTopic: types.EnrichedTopic{
			Topic:           types.Topic{Chapter: 4, Bullet: bullet},
			ConfidenceScore: 0.8,
		},
		ExamID:           exam,
		Seq:              seq,
		EstimatedMinutes: minutes,
	}
}

func examQueue(id string, priority int, minutes ...int) ExamQueue {
	q := ExamQueue{Exam: types.PlanExam{ExamID: id, Priority: priority}}
	for i, m := range minutes {
		q.Tasks = append(q.Tasks, task(id, i, m, fmt.Sprintf("%s-topic-%d", id, i+1)))
	}
	return q
}

func coverage(id, date string, n int, confidence float64) types.EnrichedCoverage {
	c := types.EnrichedCoverage{ExamID: id, ExamName: "Exam " + id, ExamDate: date}
	for i := 0; i < n; i++ {
		c.Topics = append(c.Topics, types.EnrichedTopic{
			Topic:           types.Topic{ExamID: id, Chapter: i/2 + 1, Bullet: fmt.Sprintf("%s topic %d", id, i+1)},
			ConfidenceScore: confidence,
			ReadingPages:    types.ReadingPages{FileID: "book", PageRanges: []types.PageRange{{i + 1, i + 2}}},
		})
	}
	return c
}

func topicsOf(day types.Day) []string {
	var out []string
	for _, b := range day.Blocks {
		out = append(out, b.Topic)
	}
	return out
}

func fixedPlanner() *Planner {
	return New(nil).
		WithIDFunc(func() string { return "plan-1" }).
		WithClock(func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) })
}

func TestEstimateMinutes(t *testing.T) {
	tests := []struct {
		name       string
		chapter    int
		problems   int
		confidence float64
		want       int
	}{
		{"base", 5, 0, 0.9, 30},
		{"many problems", 5, 3, 0.9, 50},
		{"two problems", 5, 2, 0.9, 30},
		{"foundational", 3, 0, 0.9, 45},
		{"no chapter", 0, 0, 0.9, 30},
		{"weak evidence", 5, 0, 0.69, 40},
		{"everything", 1, 4, 0, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic := types.EnrichedTopic{
				Topic:            types.Topic{Chapter: tt.chapter},
				PracticeProblems: make([]types.ProblemRef, tt.problems),
				ConfidenceScore:  tt.confidence,
			}
			assert.Equal(t, tt.want, EstimateMinutes(topic))
		})
	}
}

func TestExamPriorities(t *testing.T) {
	covs := []types.EnrichedCoverage{
		{ExamID: "a", ExamDate: "2026-03-10"},
		{ExamID: "b", ExamDate: "February 20, 2026"},
		{ExamID: "c"},
		{ExamID: "d", ExamDate: "2026-02-20"},
	}
	assert.Equal(t, []int{2, 4, 1, 3}, ExamPriorities(covs))
}

func TestBuildQueueKeepsTopicOrder(t *testing.T) {
	q := BuildQueue([]types.EnrichedCoverage{coverage("a", "2026-03-01", 3, 0.9)})
	require.Len(t, q, 1)
	require.Len(t, q[0].Tasks, 3)
	for i, tk := range q[0].Tasks {
		assert.Equal(t, i, tk.Seq)
		assert.Equal(t, "a", tk.ExamID)
		assert.Equal(t, 1, tk.Priority)
	}
	assert.Equal(t, 3, q.Len())
}

func TestScheduleEndToEndRoundRobin(t *testing.T) {
	q := Queue{
		examQueue("A", 2, 30, 45),
		examQueue("B", 1, 60),
	}
	days, err := NewScheduler().Schedule(q, Options{Start: feb8, End: feb28, MinutesPerDay: 90, Strategy: RoundRobin})
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, feb8, days[0].Date)
	assert.Equal(t, []string{"A-topic-1", "B-topic-1"}, topicsOf(days[0]))
	assert.Equal(t, 90, days[0].TotalMinutes)

	assert.Equal(t, feb9, days[1].Date)
	assert.Equal(t, []string{"A-topic-2"}, topicsOf(days[1]))
	assert.Equal(t, 45, days[1].TotalMinutes)
}

func TestScheduleDeferredTaskKeepsItsTurn(t *testing.T) {
	q := Queue{
		examQueue("A", 2, 60, 60),
		examQueue("B", 1, 45),
	}
	days, err := NewScheduler().Schedule(q, Options{Start: feb8, End: feb28, MinutesPerDay: 90, Strategy: RoundRobin})
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, []string{"A-topic-1"}, topicsOf(days[0]))
	assert.Equal(t, []string{"B-topic-1"}, topicsOf(days[1]))
	assert.Equal(t, []string{"A-topic-2"}, topicsOf(days[2]))
}

func TestSchedulePriorityFirst(t *testing.T) {
	q := Queue{
		examQueue("late", 1, 30, 30),
		examQueue("soon", 2, 30, 30, 30),
	}
	days, err := NewScheduler().Schedule(q, Options{Start: feb8, End: feb28, MinutesPerDay: 90, Strategy: PriorityFirst})
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, []string{"soon-topic-1", "soon-topic-2", "soon-topic-3"}, topicsOf(days[0]))
	assert.Equal(t, []string{"late-topic-1", "late-topic-2"}, topicsOf(days[1]))
}

func TestScheduleBalancedFairness(t *testing.T) {
	q := Queue{
		examQueue("A", 1, 30, 30, 30, 30, 30, 30),
		examQueue("B", 2, 60, 60, 60),
	}
	days, err := NewScheduler().Schedule(q, Options{Start: feb8, End: feb28, MinutesPerDay: 90, Strategy: Balanced})
	require.NoError(t, err)

	cum := map[string]int{}
	remaining := map[string]int{"A": 6, "B": 3}
	for _, d := range days {
		for _, b := range d.Blocks {
			cum[b.ExamID] += b.TimeEstimateMinutes
			remaining[b.ExamID]--
			if remaining["A"] > 0 && remaining["B"] > 0 {
				diff := cum["A"] - cum["B"]
				if diff < 0 {
					diff = -diff
				}
				assert.LessOrEqual(t, diff, 60)
			}
		}
	}
	assert.Equal(t, 180, cum["A"])
	assert.Equal(t, 180, cum["B"])
	// B wins the first tie on priority
	assert.Equal(t, "B", days[0].Blocks[0].ExamID)
}

func TestScheduleOverBudgetTaskGetsOwnDay(t *testing.T) {
	q := Queue{examQueue("A", 1, 30, 120, 30)}
	days, err := NewScheduler().Schedule(q, Options{Start: feb8, End: feb28, MinutesPerDay: 90, Strategy: Balanced})
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, []string{"A-topic-1"}, topicsOf(days[0]))
	assert.Equal(t, []string{"A-topic-2"}, topicsOf(days[1]))
	assert.Equal(t, 120, days[1].TotalMinutes)
	assert.Equal(t, []string{"A-topic-3"}, topicsOf(days[2]))
}

func TestScheduleRunsPastEndDate(t *testing.T) {
	q := Queue{examQueue("A", 1, 60, 60, 60)}
	days, err := NewScheduler().Schedule(q, Options{Start: feb8, End: feb9, MinutesPerDay: 60, Strategy: RoundRobin})
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.False(t, days[0].BeyondEndDate)
	assert.False(t, days[1].BeyondEndDate)
	assert.True(t, days[2].BeyondEndDate)
	assert.Equal(t, types.NewDate(2026, time.February, 10), days[2].Date)
}

func TestScheduleRejectsInvalidOptions(t *testing.T) {
	q := Queue{examQueue("A", 1, 30)}
	s := NewScheduler()

	_, err := s.Schedule(q, Options{Start: feb9, End: feb8, MinutesPerDay: 90, Strategy: Balanced})
	assert.ErrorIs(t, err, ErrInfeasibleSchedule)

	_, err = s.Schedule(q, Options{Start: feb8, End: feb9, MinutesPerDay: 0, Strategy: Balanced})
	assert.ErrorIs(t, err, ErrInvalidBudget)

	_, err = s.Schedule(q, Options{Start: feb8, End: feb9, MinutesPerDay: 90, Strategy: "random"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestScheduleEmptyQueue(t *testing.T) {
	days, err := NewScheduler().Schedule(Queue{}, Options{Start: feb8, End: feb9, MinutesPerDay: 90, Strategy: Balanced})
	require.NoError(t, err)
	assert.NotNil(t, days)
	assert.Empty(t, days)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy(" Round_Robin ")
	require.NoError(t, err)
	assert.Equal(t, RoundRobin, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Balanced, s)

	_, err = ParseStrategy("fastest")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestGenerateCoversEveryTopicWithinBudget(t *testing.T) {
	covs := []types.EnrichedCoverage{
		coverage("a", "2026-02-20", 7, 0.9),
		coverage("b", "2026-02-15", 5, 0.65),
		coverage("c", "", 4, 0.8),
	}
	for _, strategy := range Strategies() {
		t.Run(string(strategy), func(t *testing.T) {
			plan, err := fixedPlanner().Generate(context.Background(), covs, PlanRequest{
				ExamIDs:       []string{"a", "b", "c"},
				Start:         feb8,
				End:           feb28,
				MinutesPerDay: 120,
				Strategy:      strategy,
			})
			require.NoError(t, err)

			seen := map[string]int{}
			total := 0
			for _, d := range plan.Days {
				assert.LessOrEqual(t, d.TotalMinutes, 120)
				sum := 0
				for _, b := range d.Blocks {
					seen[b.ExamID+"/"+b.Topic]++
					sum += b.TimeEstimateMinutes
				}
				assert.Equal(t, sum, d.TotalMinutes)
				total += sum
			}
			for _, c := range covs {
				for _, tp := range c.Topics {
					assert.Equal(t, 1, seen[c.ExamID+"/"+tp.Bullet], tp.Bullet)
				}
			}
			assert.Equal(t, 16, plan.TotalTopics())
			assert.Equal(t, total, plan.TotalStudyMinutes)
			assert.Equal(t, len(plan.Days), plan.TotalDays)
		})
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	covs := []types.EnrichedCoverage{
		coverage("a", "2026-02-20", 6, 0.9),
		coverage("b", "2026-02-15", 6, 0.5),
	}
	req := PlanRequest{ExamIDs: []string{"a", "b"}, Start: feb8, End: feb28, MinutesPerDay: 90, Strategy: Balanced}

	first, err := fixedPlanner().Generate(context.Background(), covs, req)
	require.NoError(t, err)
	second, err := fixedPlanner().Generate(context.Background(), covs, req)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestGenerateWarnings(t *testing.T) {
	covs := []types.EnrichedCoverage{coverage("a", "2026-02-20", 2, 0.456)}

	plan, err := fixedPlanner().Generate(context.Background(), covs, PlanRequest{
		ExamIDs:       []string{"a", "missing"},
		Start:         feb8,
		End:           feb9,
		MinutesPerDay: 90,
		Strategy:      RoundRobin,
	})
	require.NoError(t, err)
	assert.Equal(t, "plan-1", plan.PlanID)
	require.Len(t, plan.Exams, 1)
	assert.Equal(t, 1, plan.Exams[0].Priority)

	block := plan.Days[0].Blocks[0]
	assert.True(t, block.LowConfidence)
	assert.Equal(t, 0.46, block.ConfidenceScore)
	assert.Equal(t, "book pp. 1-2", block.ReadingPages)
	assert.Equal(t, "none found", block.PracticeProblems)

	require.Len(t, plan.Warnings, 3)
	assert.Contains(t, plan.Warnings[0], "missing")
	assert.Contains(t, plan.Warnings[1], "low confidence (0.46)")
}

func TestGenerateEmptySelection(t *testing.T) {
	plan, err := fixedPlanner().Generate(context.Background(), nil, PlanRequest{
		Start: feb8, End: feb9, MinutesPerDay: 90, Strategy: Balanced,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, plan.TotalDays)
	assert.Empty(t, plan.Days)
	assert.Equal(t, "plan-1", plan.PlanID)
}

func TestGenerateRejectsInvertedDates(t *testing.T) {
	_, err := fixedPlanner().Generate(context.Background(), nil, PlanRequest{
		Start: feb9, End: feb8, MinutesPerDay: 90, Strategy: Balanced,
	})
	assert.ErrorIs(t, err, ErrInfeasibleSchedule)
}

func TestAnalyze(t *testing.T) {
	// chapters 1,1,2,2 -> 45 each with confidence 0.9
	covs := []types.EnrichedCoverage{coverage("a", "2026-02-20", 4, 0.9)}

	tests := []struct {
		name string
		end  types.Date
		mpd  int
		want Feasibility
	}{
		{"comfortable", feb28, 90, Comfortable},
		{"realistic", feb9, 90, Realistic},
		{"tight", feb9, 70, Tight},
		{"impossible", feb8, 60, Impossible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Analyze(covs, feb8, tt.end, tt.mpd)
			require.NoError(t, err)
			assert.Equal(t, 4, a.TotalTopics)
			assert.Equal(t, 180, a.TotalMinutesNeeded)
			assert.Equal(t, tt.want, a.Feasibility)
		})
	}
}

func TestFormatPages(t *testing.T) {
	assert.Equal(t, "none found", FormatPages(types.ReadingPages{}))
	assert.Equal(t, "ch3.pdf p. 24", FormatPages(types.ReadingPages{FileID: "ch3.pdf", PageRanges: []types.PageRange{{24, 24}}}))
	assert.Equal(t, "pp. 10-13, 24", FormatPages(types.ReadingPages{PageRanges: []types.PageRange{{10, 13}, {24, 24}}}))
}

func TestFormatProblems(t *testing.T) {
	refs := []types.ProblemRef{{Page: 30, Label: "Problem 3.1"}, {Page: 31, Snippet: "Exercise on page"}}
	assert.Equal(t, "Problem 3.1 (p. 30), Exercise on page (p. 31)", FormatProblems(refs))
}
