package trainer

import (
	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
)

// Backup folds a finished trajectory into the return history and the value
// table using first-visit Monte Carlo, and returns how many pairs were credited.
//
// The discounted return G = gamma*G + r_i is accumulated back to front over
// every step. Step i is credited only when its (state, action) pair is absent
// from trajectory[0 : i-1]; index 0 is always a first visit. That window does
// not look at step i-1, so a pair repeated on two consecutive steps is
// credited twice. strict widens the window to trajectory[0 : i].
func Backup(
	trajectory []episode.Step,
	table *learning.ActionValueTable,
	returns *learning.ReturnAccumulator,
	gamma float64,
	strict bool,
) int {
	g := 0.0
	recorded := 0

	for i := len(trajectory) - 1; i >= 0; i-- {
		step := trajectory[i]
		g = gamma*g + step.Reward

		window := i - 1
		if strict {
			window = i
		}
		if window < 0 {
			window = 0
		}

		if occurs(trajectory[:window], step) {
			continue
		}

		returns.Record(step.State, step.Action, g)
		table.Set(step.State, step.Action, returns.Mean(step.State, step.Action))
		recorded++
	}

	return recorded
}

// occurs reports whether the (state, action) pair of target appears in steps
func occurs(steps []episode.Step, target episode.Step) bool {
	for _, s := range steps {
		if s.State == target.State && s.Action == target.Action {
			return true
		}
	}
	return false
}
