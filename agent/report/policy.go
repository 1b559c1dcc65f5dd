// Package report renders learned tables and training histories for people:
// a coloured policy grid for terminals and an HTML learning curve.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/logrusorgru/aurora"

	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

var arrows = map[world.Action]string{
	world.Forward:  "↑",
	world.Backward: "↓",
	world.Right:    "→",
	world.Left:     "←",
}

// PolicyView is everything the policy grid shows
type PolicyView struct {
	World *world.GridWorld
	Table *learning.ActionValueTable
	Start world.Position
	Goal  world.Position
	Path  []world.Position
}

// RenderPolicy writes one row per z from top to bottom. Each cell shows the
// greedy action of its state, S and G for start and goal, # for obstacles and
// a dot for states the table has never seen. Cells on the path are
// highlighted. colors toggles ANSI colouring.
func RenderPolicy(w io.Writer, view PolicyView, colors bool) error {
	au := aurora.NewAurora(colors)

	obstacles := make(map[world.State]bool)
	for _, p := range view.World.Obstacles() {
		obstacles[world.Encode(p)] = true
	}
	onPath := make(map[world.State]bool)
	for _, p := range view.Path {
		onPath[world.Encode(p)] = true
	}
	start := world.Encode(view.Start)
	goal := world.Encode(view.Goal)

	var sb strings.Builder
	for _, row := range view.World.Lattice() {
		fmt.Fprintf(&sb, "%4.0f ", row[0].Z)
		for _, p := range row {
			s := world.Encode(p)
			switch {
			case s == goal:
				sb.WriteString(au.Bold(au.Green("G")).String())
			case s == start:
				sb.WriteString(au.Bold(au.Yellow("S")).String())
			case obstacles[s]:
				sb.WriteString(au.Red("#").String())
			default:
				a, ok := view.Table.Greedy(s)
				switch {
				case !ok:
					sb.WriteString(au.Gray(12, "·").String())
				case onPath[s]:
					sb.WriteString(au.Cyan(arrows[a]).String())
				default:
					sb.WriteString(au.Blue(arrows[a]).String())
				}
			}
			sb.WriteString(" ")
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Stats summarizes a table against its grid
type Stats struct {
	States   int     `json:"states"`
	Entries  int     `json:"entries"`
	Lattice  int     `json:"lattice"`
	Coverage float64 `json:"coverage"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
}

// Summarize computes table statistics. Coverage is the share of lattice
// points with at least one entry.
func Summarize(w *world.GridWorld, table *learning.ActionValueTable) Stats {
	stats := Stats{
		States:  table.Len(),
		Entries: table.Entries(),
		Min:     math.Inf(1),
		Max:     math.Inf(-1),
	}

	covered := 0
	for _, row := range w.Lattice() {
		for _, p := range row {
			stats.Lattice++
			if len(table.Actions(world.Encode(p))) > 0 {
				covered++
			}
		}
	}
	if stats.Lattice > 0 {
		stats.Coverage = float64(covered) / float64(stats.Lattice)
	}

	sum := 0.0
	for _, s := range table.States() {
		for _, v := range table.Actions(s) {
			stats.Min = math.Min(stats.Min, v)
			stats.Max = math.Max(stats.Max, v)
			sum += v
		}
	}
	if stats.Entries > 0 {
		stats.Mean = sum / float64(stats.Entries)
	} else {
		stats.Min, stats.Max = 0, 0
	}
	return stats
}

// WriteStats prints stats as aligned text
func WriteStats(w io.Writer, stats Stats) error {
	_, err := fmt.Fprintf(w,
		"states:   %d\nentries:  %d\ncoverage: %.1f%% of %d cells\nvalues:   min %.4f  max %.4f  mean %.4f\n",
		stats.States, stats.Entries, stats.Coverage*100, stats.Lattice, stats.Min, stats.Max, stats.Mean)
	return err
}
