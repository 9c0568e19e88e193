package planner

import (
	"fmt"
	"math"

	"studyrag/types"
)

type Feasibility string

const (
	Comfortable Feasibility = "comfortable"
	Realistic   Feasibility = "realistic"
	Tight       Feasibility = "tight"
	Impossible  Feasibility = "impossible"
)

type LoadAnalysis struct {
	TotalTopics         int         `json:"total_topics"`
	TotalMinutesNeeded  int         `json:"total_minutes_needed"`
	TotalHoursNeeded    float64     `json:"total_time_needed_hours"`
	AvailableDays       int         `json:"available_days"`
	MinutesAvailable    int         `json:"minutes_available"`
	HoursAvailable      float64     `json:"time_available_hours"`
	CoveragePercentage  float64     `json:"coverage_percentage"`
	Feasibility         Feasibility `json:"feasibility"`
	RecommendedStrategy Strategy    `json:"recommended_strategy"`
	Recommendation      string      `json:"recommendation"`
	LowConfidenceTopics int         `json:"low_confidence_topics"`
	Message             string      `json:"message"`
}

// Analyze estimates whether the coverages fit between start and end at
// minutesPerDay, without scheduling anything.
func Analyze(coverages []types.EnrichedCoverage, start, end types.Date, minutesPerDay int) (LoadAnalysis, error) {
	opts := Options{Start: start, End: end, MinutesPerDay: minutesPerDay, Strategy: Balanced}
	if err := opts.Validate(); err != nil {
		return LoadAnalysis{}, err
	}

	var a LoadAnalysis
	for _, c := range coverages {
		for _, t := range c.Topics {
			a.TotalTopics++
			a.TotalMinutesNeeded += EstimateMinutes(t)
			if t.ConfidenceScore < types.WarningConfidence {
				a.LowConfidenceTopics++
			}
		}
	}

	a.AvailableDays = start.DaysUntil(end) + 1
	a.MinutesAvailable = a.AvailableDays * minutesPerDay
	a.TotalHoursNeeded = round1(float64(a.TotalMinutesNeeded) / 60)
	a.HoursAvailable = round1(float64(a.MinutesAvailable) / 60)

	ratio := 0.0
	a.CoveragePercentage = 100
	if a.TotalMinutesNeeded > 0 {
		ratio = float64(a.TotalMinutesNeeded) / float64(a.MinutesAvailable)
		a.CoveragePercentage = round1(math.Min(100, 100/ratio))
	}

	switch {
	case ratio <= 0.7:
		a.Feasibility = Comfortable
		a.RecommendedStrategy = Balanced
		a.Recommendation = "plenty of time: interleave exams evenly and add review sessions"
	case ratio <= 1.0:
		a.Feasibility = Realistic
		a.RecommendedStrategy = Balanced
		a.Recommendation = "achievable: keep a balanced schedule and stick to the daily budget"
	case ratio <= 1.3:
		a.Feasibility = Tight
		a.RecommendedStrategy = PriorityFirst
		a.Recommendation = "tight: focus on the nearest exam first and consider more minutes per day"
	default:
		a.Feasibility = Impossible
		a.RecommendedStrategy = PriorityFirst
		a.Recommendation = "not enough time: extend the date range or raise the daily budget; the plan will run past the end date"
	}

	a.Message = fmt.Sprintf("%s: need %.1fh, have %.1fh available (%.1f%% coverage)",
		a.Feasibility, a.TotalHoursNeeded, a.HoursAvailable, a.CoveragePercentage)
	return a, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
