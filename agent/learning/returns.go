package learning

import (
	"fmt"

	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// ReturnAccumulator keeps every observed return per (state, action) pair
type ReturnAccumulator struct {
	returns map[world.State]map[world.Action][]float64
}

// NewReturnAccumulator creates an empty accumulator
func NewReturnAccumulator() *ReturnAccumulator {
	return &ReturnAccumulator{
		returns: make(map[world.State]map[world.Action][]float64),
	}
}

// Record appends g to the returns of (s, a)
func (r *ReturnAccumulator) Record(s world.State, a world.Action, g float64) {
	actions, ok := r.returns[s]
	if !ok {
		actions = make(map[world.Action][]float64, world.NumActions)
		r.returns[s] = actions
	}
	actions[a] = append(actions[a], g)
}

// Mean returns the arithmetic mean of the returns of (s, a). Calling it for a
// pair that was never recorded is a programming error and panics.
func (r *ReturnAccumulator) Mean(s world.State, a world.Action) float64 {
	values := r.returns[s][a]
	if len(values) == 0 {
		panic(fmt.Sprintf("learning: mean of unrecorded pair (%s, %s)", s, a))
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Count returns how many returns were recorded for (s, a)
func (r *ReturnAccumulator) Count(s world.State, a world.Action) int {
	return len(r.returns[s][a])
}

// Returns returns a copy of the recorded returns of (s, a)
func (r *ReturnAccumulator) Returns(s world.State, a world.Action) []float64 {
	values := r.returns[s][a]
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// Pairs returns the number of (state, action) pairs with at least one return
func (r *ReturnAccumulator) Pairs() int {
	n := 0
	for _, actions := range r.returns {
		n += len(actions)
	}
	return n
}
