package service

import (
	"fmt"

	"studyrag/planner"
	"studyrag/types"
)

// PlanDefaults fill the plan parameters a caller leaves out.
type PlanDefaults struct {
	MinutesPerDay int
	Strategy      string
}

// PlanRequest converts API or CLI parameters into a planner request.
func (d PlanDefaults) PlanRequest(params types.PlanParams) (planner.PlanRequest, error) {
	start, err := types.ParseDate(params.StartDate)
	if err != nil {
		return planner.PlanRequest{}, fmt.Errorf("start date: %w", err)
	}
	end, err := types.ParseDate(params.EndDate)
	if err != nil {
		return planner.PlanRequest{}, fmt.Errorf("end date: %w", err)
	}

	name := params.Strategy
	if name == "" {
		name = d.Strategy
	}
	strategy, err := planner.ParseStrategy(name)
	if err != nil {
		return planner.PlanRequest{}, err
	}

	minutes := params.MinutesPerDay
	if minutes == 0 {
		minutes = d.MinutesPerDay
	}

	return planner.PlanRequest{
		ExamIDs:       params.ExamIDs,
		Start:         start,
		End:           end,
		MinutesPerDay: minutes,
		Strategy:      strategy,
	}, nil
}
