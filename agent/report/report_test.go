package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

func createTestView(t *testing.T) PolicyView {
	t.Helper()
	w, err := world.New(world.Options{Extent: 1, StepSize: 1, Clearance: 0.5}, []world.Position{{X: 0, Z: 0}})
	require.NoError(t, err)

	table := learning.NewSeededTable("-1,1")
	table.Set("1,-1", world.Forward, -0.2)
	table.Set("1,-1", world.Left, -0.1)
	table.Set("1,0", world.Forward, -0.1)
	table.Set("0,1", world.Left, -0.1)

	return PolicyView{
		World: w,
		Table: table,
		Start: world.Position{X: 1, Z: -1},
		Goal:  world.Position{X: -1, Z: 1},
		Path:  []world.Position{{X: 1, Z: -1}, {X: 1, Z: 0}, {X: 1, Z: 1}},
	}
}

func TestRenderPolicy_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPolicy(&buf, createTestView(t), false))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "   1 G ← · ", lines[0])
	assert.Equal(t, "   0 · # ↑ ", lines[1])
	assert.Equal(t, "  -1 · · S ", lines[2])
}

func TestRenderPolicy_Colored(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPolicy(&buf, createTestView(t), true))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestSummarize(t *testing.T) {
	view := createTestView(t)
	stats := Summarize(view.World, view.Table)

	assert.Equal(t, 4, stats.States)
	assert.Equal(t, 8, stats.Entries)
	assert.Equal(t, 9, stats.Lattice)
	assert.InDelta(t, 4.0/9.0, stats.Coverage, 1e-12)
	assert.Equal(t, -0.2, stats.Min)
	assert.Equal(t, 1.0, stats.Max)
	assert.InDelta(t, 3.5/8, stats.Mean, 1e-12)

	var buf bytes.Buffer
	require.NoError(t, WriteStats(&buf, stats))
	assert.Contains(t, buf.String(), "states:   4")
}

func TestSummarize_EmptyTable(t *testing.T) {
	view := createTestView(t)
	stats := Summarize(view.World, learning.NewActionValueTable())
	assert.Equal(t, 0.0, stats.Min)
	assert.Equal(t, 0.0, stats.Max)
	assert.Equal(t, 0.0, stats.Coverage)
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	assert.Equal(t, []float64{2, 3, 5, 7}, got)
	assert.Empty(t, MovingAverage(nil, 3))
}

func TestWriteLearningCurve(t *testing.T) {
	history := []trainer.EpisodeSummary{
		{Episode: 0, Steps: 120, Return: -11.9, Outcome: episode.Success},
		{Episode: 1, Steps: 40, Return: -3.9, Outcome: episode.Success},
		{Episode: 2, Steps: 28, Return: -2.7, Outcome: episode.Success},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLearningCurve(&buf, "walls", history, 2))
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "walls")
	assert.Contains(t, html, "steps per episode")

	assert.Error(t, WriteLearningCurve(&buf, "empty", nil, 0))
}
