package planner

import (
	"errors"
	"fmt"

	"studyrag/types"
)

var (
	ErrInfeasibleSchedule = errors.New("infeasible schedule")
	ErrInvalidBudget      = errors.New("minutes per day must be positive")
)

type Options struct {
	Start         types.Date
	End           types.Date
	MinutesPerDay int
	Strategy      Strategy
}

func (o Options) Validate() error {
	if o.Start.IsZero() || o.End.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInfeasibleSchedule)
	}
	if o.End.Before(o.Start) {
		return fmt.Errorf("%w: end date %s precedes start date %s", ErrInfeasibleSchedule, o.End, o.Start)
	}
	if o.MinutesPerDay <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidBudget, o.MinutesPerDay)
	}
	if _, err := o.Strategy.picker(); err != nil {
		return err
	}
	return nil
}

// Scheduler assigns queued tasks to calendar days.
type Scheduler struct{}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule fills days from opts.Start onward until the queue is empty.
//
// A day takes tasks until the next picked task does not fit; that task stays
// at the head of its exam's queue and opens the next day. A task longer than
// the whole budget gets a day of its own. Days past opts.End are still
// produced, flagged BeyondEndDate, so that no topic is dropped.
func (s *Scheduler) Schedule(q Queue, opts Options) ([]types.Day, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	pick, _ := opts.Strategy.picker()

	days := []types.Day{}
	if q.Len() == 0 {
		return days, nil
	}

	st := &fillState{
		queues:     make([][]int, len(q)),
		cumulative: make([]int, len(q)),
		priority:   make([]int, len(q)),
	}
	for i, e := range q {
		st.priority[i] = e.Exam.Priority
		st.queues[i] = make([]int, len(e.Tasks))
		for j := range e.Tasks {
			st.queues[i][j] = j
		}
	}

	date := opts.Start
	day := newDay(date, opts.End)
	closeDay := func() {
		days = append(days, day)
		date = date.AddDays(1)
		day = newDay(date, opts.End)
	}

	for {
		exam := pick(st)
		if exam < 0 {
			break
		}
		task := q[exam].Tasks[st.queues[exam][0]]
		room := opts.MinutesPerDay - day.TotalMinutes

		if task.EstimatedMinutes > room && len(day.Blocks) > 0 {
			closeDay()
			continue
		}

		day.Blocks = append(day.Blocks, NewBlock(task))
		day.TotalMinutes += task.EstimatedMinutes
		st.queues[exam] = st.queues[exam][1:]
		st.cumulative[exam] += task.EstimatedMinutes
		st.cursor = (exam + 1) % len(q)

		if day.TotalMinutes >= opts.MinutesPerDay {
			closeDay()
		}
	}
	if len(day.Blocks) > 0 {
		days = append(days, day)
	}
	return days, nil
}

func newDay(date, end types.Date) types.Day {
	return types.Day{
		Date:          date,
		Blocks:        []types.Block{},
		BeyondEndDate: date.After(end),
	}
}
