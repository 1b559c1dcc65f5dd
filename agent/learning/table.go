// Package learning holds the tabular estimates of first-visit Monte Carlo
// control: the action-value table and the per-pair return history.
//
// Neither type is safe for concurrent use; callers serialize access.
package learning

import (
	"math/rand"
	"sort"

	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// DefaultValue is returned for pairs that were never set
const DefaultValue = 1.0

// ActionValueTable maps State -> Action -> estimated return
type ActionValueTable struct {
	values map[world.State]map[world.Action]float64
}

// NewActionValueTable creates an empty table
func NewActionValueTable() *ActionValueTable {
	return &ActionValueTable{
		values: make(map[world.State]map[world.Action]float64),
	}
}

// NewSeededTable creates a table whose goal state holds DefaultValue for every action
func NewSeededTable(goal world.State) *ActionValueTable {
	t := NewActionValueTable()
	for _, a := range world.AllActions {
		t.Set(goal, a, DefaultValue)
	}
	return t
}

// FromSnapshot builds a table from a nested map, copying it
func FromSnapshot(snapshot map[world.State]map[world.Action]float64) *ActionValueTable {
	t := NewActionValueTable()
	for s, actions := range snapshot {
		for a, v := range actions {
			t.Set(s, a, v)
		}
	}
	return t
}

// Get returns the estimate for (s, a), or DefaultValue when unset
func (t *ActionValueTable) Get(s world.State, a world.Action) float64 {
	if actions, ok := t.values[s]; ok {
		if v, ok := actions[a]; ok {
			return v
		}
	}
	return DefaultValue
}

// Lookup returns the estimate for (s, a) and whether it was ever set
func (t *ActionValueTable) Lookup(s world.State, a world.Action) (float64, bool) {
	actions, ok := t.values[s]
	if !ok {
		return 0, false
	}
	v, ok := actions[a]
	return v, ok
}

// Set creates or overwrites the estimate for (s, a)
func (t *ActionValueTable) Set(s world.State, a world.Action, value float64) {
	actions, ok := t.values[s]
	if !ok {
		actions = make(map[world.Action]float64, world.NumActions)
		t.values[s] = actions
	}
	actions[a] = value
}

// BestAction picks the highest valued candidate whose resulting state is not
// excluded. Defined pairs are scanned in ascending action id and the first
// maximum wins. When nothing qualifies a candidate is chosen uniformly at
// random. candidates must not be empty.
func (t *ActionValueTable) BestAction(
	s world.State,
	candidates []world.Action,
	next func(world.Action) world.State,
	excluded map[world.State]bool,
	rng *rand.Rand,
) world.Action {
	if len(candidates) == 0 {
		panic("learning: BestAction called without candidate actions")
	}

	best, found := t.bestDefined(s, candidates, next, excluded)
	if found {
		return best
	}

	return candidates[rng.Intn(len(candidates))]
}

// bestDefined is the deterministic part of BestAction
func (t *ActionValueTable) bestDefined(
	s world.State,
	candidates []world.Action,
	next func(world.Action) world.State,
	excluded map[world.State]bool,
) (world.Action, bool) {
	actions, ok := t.values[s]
	if !ok {
		return 0, false
	}

	var (
		best     world.Action
		bestVal  float64
		found    bool
		eligible [world.NumActions]bool
	)
	for _, a := range candidates {
		if a.Valid() {
			eligible[a] = true
		}
	}

	for _, a := range world.AllActions {
		v, defined := actions[a]
		if !defined || !eligible[a] {
			continue
		}
		if excluded[next(a)] {
			continue
		}
		if !found || v > bestVal {
			best, bestVal, found = a, v, true
		}
	}

	return best, found
}

// Greedy returns the highest valued defined action of s among all four,
// ignoring exclusions. ok is false when s has no entries.
func (t *ActionValueTable) Greedy(s world.State) (world.Action, bool) {
	return t.bestDefined(s, world.AllActions, func(world.Action) world.State { return "" }, nil)
}

// States returns every state with at least one entry, sorted
func (t *ActionValueTable) States() []world.State {
	states := make([]world.State, 0, len(t.values))
	for s := range t.values {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}

// Actions returns a copy of the defined action values of s
func (t *ActionValueTable) Actions(s world.State) map[world.Action]float64 {
	actions := t.values[s]
	out := make(map[world.Action]float64, len(actions))
	for a, v := range actions {
		out[a] = v
	}
	return out
}

// Len returns the number of states with entries
func (t *ActionValueTable) Len() int {
	return len(t.values)
}

// Entries returns the number of defined (state, action) pairs
func (t *ActionValueTable) Entries() int {
	n := 0
	for _, actions := range t.values {
		n += len(actions)
	}
	return n
}

// Snapshot returns a deep copy of the nested mapping
func (t *ActionValueTable) Snapshot() map[world.State]map[world.Action]float64 {
	out := make(map[world.State]map[world.Action]float64, len(t.values))
	for s, actions := range t.values {
		inner := make(map[world.Action]float64, len(actions))
		for a, v := range actions {
			inner[a] = v
		}
		out[s] = inner
	}
	return out
}

// Clone returns an independent copy of the table
func (t *ActionValueTable) Clone() *ActionValueTable {
	return &ActionValueTable{values: t.Snapshot()}
}

// Equal reports whether both tables hold exactly the same entries
func (t *ActionValueTable) Equal(other *ActionValueTable) bool {
	if other == nil || len(t.values) != len(other.values) {
		return false
	}
	for s, actions := range t.values {
		otherActions, ok := other.values[s]
		if !ok || len(actions) != len(otherActions) {
			return false
		}
		for a, v := range actions {
			ov, ok := otherActions[a]
			if !ok || ov != v {
				return false
			}
		}
	}
	return true
}
