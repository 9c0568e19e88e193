package planner

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStrategy = errors.New("unknown scheduling strategy")

// Strategy selects which exam's next task is pulled while a day has room.
type Strategy string

const (
	RoundRobin    Strategy = "round_robin"
	PriorityFirst Strategy = "priority_first"
	Balanced      Strategy = "balanced"
)

func Strategies() []Strategy {
	return []Strategy{RoundRobin, PriorityFirst, Balanced}
}

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case RoundRobin, PriorityFirst, Balanced:
		return st, nil
	case "":
		return Balanced, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// fillState is the scheduler state visible to a strategy.
type fillState struct {
	queues     [][]int // remaining task indexes per exam
	cumulative []int
	priority   []int
	cursor     int
}

func (st *fillState) hasTasks(exam int) bool {
	return len(st.queues[exam]) > 0
}

// picker returns the exam index to pull from, or -1 when every queue is empty.
type picker func(st *fillState) int

func (s Strategy) picker() (picker, error) {
	switch s {
	case RoundRobin:
		return pickRoundRobin, nil
	case PriorityFirst:
		return pickPriorityFirst, nil
	case Balanced:
		return pickBalanced, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, string(s))
}

// pickRoundRobin cycles from the cursor, skipping exhausted exams. The
// scheduler moves the cursor past an exam only once its task is placed.
func pickRoundRobin(st *fillState) int {
	n := len(st.queues)
	for k := 0; k < n; k++ {
		i := (st.cursor + k) % n
		if st.hasTasks(i) {
			return i
		}
	}
	return -1
}

func pickPriorityFirst(st *fillState) int {
	best := -1
	for i := range st.queues {
		if !st.hasTasks(i) {
			continue
		}
		if best < 0 || st.priority[i] > st.priority[best] {
			best = i
		}
	}
	return best
}

// pickBalanced takes the exam with the fewest scheduled minutes, then the
// higher priority, then the earlier input position.
func pickBalanced(st *fillState) int {
	best := -1
	for i := range st.queues {
		if !st.hasTasks(i) {
			continue
		}
		switch {
		case best < 0:
			best = i
		case st.cumulative[i] < st.cumulative[best]:
			best = i
		case st.cumulative[i] == st.cumulative[best] && st.priority[i] > st.priority[best]:
			best = i
		}
	}
	return best
}
