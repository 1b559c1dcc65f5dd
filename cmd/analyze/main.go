// Command analyze prints quick, human-readable heuristics about saved
// action-value tables. For each table it finds the matching scenario in the
// configs directory, summarizes value coverage, replays the greedy policy
// from the start and reports cells whose greedy action points off the grid.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/report"
	"github.com/wricardo/mcp-training/montecarlo/agent/store"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

// Analysis is what analyze learns about one table
type Analysis struct {
	Name     string
	Scenario string
	Stats    report.Stats

	Outcome   episode.Outcome
	Steps     int
	Distinct  int
	Revisits  int
	Path      []world.Position
	OffGrid   []world.Position
	Unvisited int
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "summarize saved tables",
		ArgsUsage: "[table file...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "configs", Value: "configs", Usage: "scenario directory"},
			&cli.StringFlag{Name: "tables", Value: "tables", Usage: "table directory scanned when no files are given"},
			&cli.BoolFlag{Name: "policy", Usage: "print the greedy policy grid"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				var err error
				if files, err = findTables(cmd.String("tables")); err != nil {
					return err
				}
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.Root().Writer, "no tables found")
				return nil
			}

			for _, file := range files {
				fmt.Fprintf(cmd.Root().Writer, "\n=== Analyzing %s ===\n", file)
				if err := analyzeFile(cmd.Root().Writer, file, cmd.String("configs"), cmd.Bool("policy")); err != nil {
					fmt.Fprintf(cmd.Root().Writer, "Error: %v\n", err)
				}
			}
			return nil
		},
	}
}

// findTables lists every .dat and .json file in dir
func findTables(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.dat", "*.json"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

// scenarioFor returns the scenario named like the table file, or the default
// scenario when configDir has none.
func scenarioFor(tablePath, configDir string) *config.Config {
	name := strings.TrimSuffix(filepath.Base(tablePath), filepath.Ext(tablePath))

	manager, err := config.NewManager(configDir)
	if err != nil {
		return config.Default()
	}
	cfg, err := manager.LoadConfig(name)
	if err != nil {
		return manager.GetDefault()
	}
	return cfg
}

func analyzeFile(w io.Writer, path, configDir string, showPolicy bool) error {
	table, err := store.NewFileStore(path).Load()
	if err != nil {
		if errors.Is(err, store.ErrNoData) {
			return fmt.Errorf("no usable table at %s", path)
		}
		return err
	}

	cfg := scenarioFor(path, configDir)
	analysis, err := analyze(filepath.Base(path), cfg, table)
	if err != nil {
		return err
	}
	printAnalysis(w, analysis)

	if showPolicy {
		gw, err := cfg.NewWorld()
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		return report.RenderPolicy(w, report.PolicyView{
			World: gw,
			Table: table,
			Start: cfg.Start,
			Goal:  cfg.Goal,
			Path:  analysis.Path,
		}, false)
	}
	return nil
}

// analyze replays the greedy policy over a copy of table. The replay is
// capped at four moves per lattice cell, which is enough to reach any cell.
func analyze(name string, cfg *config.Config, table *learning.ActionValueTable) (*Analysis, error) {
	gw, err := cfg.NewWorld()
	if err != nil {
		return nil, err
	}

	result := &Analysis{
		Name:     name,
		Scenario: cfg.Name,
		Stats:    report.Summarize(gw, table),
	}

	cells := 0
	for _, row := range gw.Lattice() {
		for _, p := range row {
			cells++
			a, ok := table.Greedy(world.Encode(p))
			if !ok {
				result.Unvisited++
				continue
			}
			if !allowed(gw.AllowedActions(p), a) {
				result.OffGrid = append(result.OffGrid, p)
			}
		}
	}

	epCfg := cfg.TrainerConfig().Episode
	epCfg.MaxSteps = min(epCfg.MaxSteps, 4*cells)

	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	runner, err := episode.NewRunner(gw, table.Clone(), epCfg, episode.Exploitation, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	for !runner.Outcome().Terminal() {
		if _, err := runner.Step(); err != nil {
			return nil, err
		}
	}

	result.Outcome = runner.Outcome()
	result.Steps = runner.Steps()
	result.Path = runner.Path()

	seen := make(map[world.State]bool)
	for _, p := range result.Path {
		seen[world.Encode(p)] = true
	}
	result.Distinct = len(seen)
	result.Revisits = len(result.Path) - len(seen)
	return result, nil
}

func allowed(actions []world.Action, a world.Action) bool {
	for _, candidate := range actions {
		if candidate == a {
			return true
		}
	}
	return false
}

func printAnalysis(w io.Writer, a *Analysis) {
	fmt.Fprintf(w, "Scenario: %s\n", a.Scenario)
	report.WriteStats(w, a.Stats)
	fmt.Fprintf(w, "Cells without values: %d\n", a.Unvisited)

	fmt.Fprintf(w, "Greedy replay: %s in %d steps (%d cells, %d revisits)\n", a.Outcome, a.Steps, a.Distinct, a.Revisits)
	if a.Outcome != episode.Success {
		fmt.Fprintln(w, "⚠️  Greedy policy does not reach the goal")
	}

	if len(a.OffGrid) > 0 {
		fmt.Fprintf(w, "⚠️  %d cells point off the grid:\n", len(a.OffGrid))
		for _, p := range a.OffGrid {
			fmt.Fprintf(w, "  %s\n", world.Encode(p))
		}
	}
}
