package learning

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// nextOf moves one unit from the lattice point encoded by s
func nextOf(t *testing.T, s world.State) func(world.Action) world.State {
	t.Helper()
	p, err := world.Decode(s)
	require.NoError(t, err)
	return func(a world.Action) world.State {
		d := a.Direction()
		return world.Encode(world.Position{X: p.X + d.X, Z: p.Z + d.Z})
	}
}

func TestActionValueTable_GetDefault(t *testing.T) {
	table := NewActionValueTable()
	assert.Equal(t, DefaultValue, table.Get("0,0", world.Forward))

	_, ok := table.Lookup("0,0", world.Forward)
	assert.False(t, ok)

	table.Set("0,0", world.Forward, -2.5)
	assert.Equal(t, -2.5, table.Get("0,0", world.Forward))
	assert.Equal(t, DefaultValue, table.Get("0,0", world.Left))

	table.Set("0,0", world.Forward, 3)
	v, ok := table.Lookup("0,0", world.Forward)
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 1, table.Entries())
}

func TestNewSeededTable(t *testing.T) {
	table := NewSeededTable("-7,7")
	require.Equal(t, 1, table.Len())
	assert.Equal(t, world.NumActions, table.Entries())
	for _, a := range world.AllActions {
		v, ok := table.Lookup("-7,7", a)
		assert.True(t, ok)
		assert.Equal(t, DefaultValue, v)
	}
}

func TestBestAction_PicksMaximum(t *testing.T) {
	table := NewActionValueTable()
	table.Set("0,0", world.Forward, -3)
	table.Set("0,0", world.Backward, -1)
	table.Set("0,0", world.Right, -2)

	rng := rand.New(rand.NewSource(1))
	got := table.BestAction("0,0", world.AllActions, nextOf(t, "0,0"), nil, rng)
	assert.Equal(t, world.Backward, got)
}

func TestBestAction_RespectsCandidates(t *testing.T) {
	table := NewActionValueTable()
	table.Set("0,0", world.Forward, 5)
	table.Set("0,0", world.Left, 1)

	rng := rand.New(rand.NewSource(1))
	got := table.BestAction("0,0", []world.Action{world.Backward, world.Left}, nextOf(t, "0,0"), nil, rng)
	assert.Equal(t, world.Left, got)
}

func TestBestAction_SkipsExcludedStates(t *testing.T) {
	table := NewActionValueTable()
	table.Set("0,0", world.Forward, 5)
	table.Set("0,0", world.Right, 1)

	excluded := map[world.State]bool{"0,1": true}
	rng := rand.New(rand.NewSource(1))
	got := table.BestAction("0,0", world.AllActions, nextOf(t, "0,0"), excluded, rng)
	assert.Equal(t, world.Right, got)
}

func TestBestAction_TieBreaksOnLowestID(t *testing.T) {
	table := NewActionValueTable()
	table.Set("0,0", world.Left, 2)
	table.Set("0,0", world.Backward, 2)
	table.Set("0,0", world.Right, 2)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		got := table.BestAction("0,0", world.AllActions, nextOf(t, "0,0"), nil, rng)
		assert.Equal(t, world.Backward, got)
	}
}

func TestBestAction_RandomFallback(t *testing.T) {
	candidates := []world.Action{world.Forward, world.Left}
	rng := rand.New(rand.NewSource(7))

	t.Run("unknown state", func(t *testing.T) {
		table := NewActionValueTable()
		seen := map[world.Action]bool{}
		for i := 0; i < 200; i++ {
			a := table.BestAction("3,3", candidates, nextOf(t, "3,3"), nil, rng)
			assert.Contains(t, candidates, a)
			seen[a] = true
		}
		assert.Len(t, seen, 2, "both candidates should be drawn")
	})

	t.Run("all qualifying candidates excluded", func(t *testing.T) {
		table := NewActionValueTable()
		table.Set("3,3", world.Forward, 10)
		excluded := map[world.State]bool{"3,4": true}
		for i := 0; i < 50; i++ {
			a := table.BestAction("3,3", []world.Action{world.Forward}, nextOf(t, "3,3"), excluded, rng)
			assert.Equal(t, world.Forward, a)
		}
	})

	t.Run("defined actions outside candidates", func(t *testing.T) {
		table := NewActionValueTable()
		table.Set("3,3", world.Right, 10)
		for i := 0; i < 50; i++ {
			a := table.BestAction("3,3", candidates, nextOf(t, "3,3"), nil, rng)
			assert.Contains(t, candidates, a)
		}
	})
}

func TestBestAction_PanicsWithoutCandidates(t *testing.T) {
	table := NewActionValueTable()
	assert.Panics(t, func() {
		table.BestAction("0,0", nil, nextOf(t, "0,0"), nil, rand.New(rand.NewSource(1)))
	})
}

func TestBestAction_DoesNotAllocate(t *testing.T) {
	if raceEnabled {
		t.Skip("allocation counts are unreliable under the race detector")
	}

	table := NewActionValueTable()
	table.Set("0,0", world.Forward, -2)
	table.Set("0,0", world.Right, -1)

	rng := rand.New(rand.NewSource(1))
	next := func(a world.Action) world.State { return "" }
	candidates := []world.Action{world.Forward, world.Backward, world.Right}
	excluded := map[world.State]bool{"1,1": true}

	allocs := testing.AllocsPerRun(100, func() {
		table.BestAction("0,0", candidates, next, excluded, rng)
	})
	assert.Zero(t, allocs)
	assert.Equal(t, world.Right, table.BestAction("0,0", candidates, next, excluded, rng))
}

func TestBestAction_IgnoresInvalidCandidates(t *testing.T) {
	table := NewActionValueTable()
	table.Set("0,0", world.Left, -1)

	rng := rand.New(rand.NewSource(1))
	next := func(a world.Action) world.State { return "" }
	got := table.BestAction("0,0", []world.Action{world.Action(9), world.Left}, next, nil, rng)
	assert.Equal(t, world.Left, got)
}

func TestGreedy(t *testing.T) {
	table := NewActionValueTable()
	_, ok := table.Greedy("0,0")
	assert.False(t, ok)

	table.Set("0,0", world.Right, 4)
	table.Set("0,0", world.Left, 9)
	a, ok := table.Greedy("0,0")
	assert.True(t, ok)
	assert.Equal(t, world.Left, a)
}

func TestSnapshotCloneEqual(t *testing.T) {
	table := NewSeededTable("-7,7")
	table.Set("1,1", world.Right, -0.5)

	clone := table.Clone()
	assert.True(t, table.Equal(clone))

	clone.Set("1,1", world.Right, -0.6)
	assert.False(t, table.Equal(clone))
	assert.Equal(t, -0.5, table.Get("1,1", world.Right))

	rebuilt := FromSnapshot(table.Snapshot())
	assert.True(t, rebuilt.Equal(table))
	assert.False(t, table.Equal(nil))
	assert.Equal(t, []world.State{"-7,7", "1,1"}, table.States())
}

func TestReturnAccumulator_Mean(t *testing.T) {
	acc := NewReturnAccumulator()
	acc.Record("0,0", world.Left, -1.5)
	acc.Record("0,0", world.Left, -0.5)

	assert.InDelta(t, (-1.5+-0.5)/2, acc.Mean("0,0", world.Left), 1e-12)
	assert.Equal(t, 2, acc.Count("0,0", world.Left))
	assert.Equal(t, 0, acc.Count("0,0", world.Right))
	assert.Equal(t, []float64{-1.5, -0.5}, acc.Returns("0,0", world.Left))
	assert.Equal(t, 1, acc.Pairs())
}

func TestReturnAccumulator_MeanOfUnrecordedPanics(t *testing.T) {
	acc := NewReturnAccumulator()
	assert.Panics(t, func() { acc.Mean("0,0", world.Forward) })

	acc.Record("0,0", world.Forward, 1)
	assert.Panics(t, func() { acc.Mean("0,0", world.Backward) })
}
