package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/mcp-training/montecarlo/agent/config"
	"github.com/wricardo/mcp-training/montecarlo/agent/episode"
	"github.com/wricardo/mcp-training/montecarlo/agent/learning"
	"github.com/wricardo/mcp-training/montecarlo/agent/store"
	"github.com/wricardo/mcp-training/montecarlo/agent/world"
)

const tinyScenario = `{
	"name": "tiny",
	"episodes": 3,
	"max_steps": 10000,
	"grid_extent": 1,
	"start": {"x": 1, "z": -1},
	"goal": {"x": -1, "z": 1},
	"seed": 3
}`

// pathTable walks the bottom row to the left and then up the left column.
// The top right corner points off the grid.
func pathTable() *learning.ActionValueTable {
	table := learning.NewActionValueTable()
	table.Set("1,-1", world.Left, 5)
	table.Set("0,-1", world.Left, 5)
	table.Set("-1,-1", world.Forward, 5)
	table.Set("-1,0", world.Forward, 5)
	table.Set("1,1", world.Right, 5)
	return table
}

func tinyConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.json"), []byte(tinyScenario), 0644); err != nil {
		t.Fatalf("Failed to write scenario: %v", err)
	}
	manager, err := config.NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	cfg, err := manager.LoadConfig("tiny")
	if err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	return cfg
}

func TestAnalyze(t *testing.T) {
	analysis, err := analyze("tiny.dat", tinyConfig(t), pathTable())
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if analysis.Scenario != "tiny" {
		t.Errorf("Expected scenario tiny, got %s", analysis.Scenario)
	}
	if analysis.Outcome != episode.Success {
		t.Errorf("Expected success, got %s", analysis.Outcome)
	}
	if analysis.Steps != 4 {
		t.Errorf("Expected 4 steps, got %d", analysis.Steps)
	}
	if analysis.Distinct != 5 || analysis.Revisits != 0 {
		t.Errorf("Expected 5 distinct cells and no revisits, got %d and %d", analysis.Distinct, analysis.Revisits)
	}
	if analysis.Unvisited != 4 {
		t.Errorf("Expected 4 cells without values, got %d", analysis.Unvisited)
	}
	if len(analysis.OffGrid) != 1 || analysis.OffGrid[0] != (world.Position{X: 1, Z: 1}) {
		t.Errorf("Expected only 1,1 to point off the grid, got %v", analysis.OffGrid)
	}
	if analysis.Stats.States != 5 {
		t.Errorf("Expected 5 states, got %d", analysis.Stats.States)
	}
}

func TestAnalyze_DoesNotModifyTable(t *testing.T) {
	table := pathTable()
	before := table.Clone()

	if _, err := analyze("tiny.dat", tinyConfig(t), table); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !table.Equal(before) {
		t.Error("analyze modified the table")
	}
}

func TestPrintAnalysis(t *testing.T) {
	var buf bytes.Buffer
	printAnalysis(&buf, &Analysis{
		Scenario: "tiny",
		Outcome:  episode.Truncated,
		Steps:    36,
		Distinct: 3,
		Revisits: 34,
		OffGrid:  []world.Position{{X: 1, Z: 1}},
	})

	out := buf.String()
	for _, want := range []string{
		"Scenario: tiny",
		"Greedy replay: truncated in 36 steps (3 cells, 34 revisits)",
		"does not reach the goal",
		"1 cells point off the grid",
		"  1,1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestScenarioFor(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.json"), []byte(tinyScenario), 0644); err != nil {
		t.Fatalf("Failed to write scenario: %v", err)
	}

	if cfg := scenarioFor("tables/tiny.dat", dir); cfg.Name != "tiny" {
		t.Errorf("Expected tiny, got %s", cfg.Name)
	}
	if cfg := scenarioFor("tables/unknown.dat", "/non/existent"); cfg.Name != config.Default().Name {
		t.Errorf("Expected the default scenario, got %s", cfg.Name)
	}
}

func TestFindTables(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.dat", "b.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	files, err := findTables(dir)
	if err != nil {
		t.Fatalf("findTables failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("Expected 2 tables, got %v", files)
	}
}

func TestAnalyzeFile_Missing(t *testing.T) {
	var buf bytes.Buffer
	err := analyzeFile(&buf, filepath.Join(t.TempDir(), "missing.dat"), t.TempDir(), false)
	if err == nil || !strings.Contains(err.Error(), "no usable table") {
		t.Errorf("Expected a no usable table error, got %v", err)
	}
}

func TestApp_Integration(t *testing.T) {
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, "tiny.json"), []byte(tinyScenario), 0644); err != nil {
		t.Fatalf("Failed to write scenario: %v", err)
	}
	tablesDir := t.TempDir()
	if err := store.NewFileStore(filepath.Join(tablesDir, "tiny.dat")).Save(pathTable()); err != nil {
		t.Fatalf("Failed to save table: %v", err)
	}

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	err := app.Run(context.Background(), []string{"analyze", "--configs", configDir, "--tables", tablesDir, "--policy"})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"=== Analyzing", "Scenario: tiny", "Greedy replay: success in 4 steps", "G"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}

	buf.Reset()
	app = newApp()
	app.Writer = &buf
	if err := app.Run(context.Background(), []string{"analyze", "--tables", t.TempDir()}); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !strings.Contains(buf.String(), "no tables found") {
		t.Errorf("Expected no tables found, got %q", buf.String())
	}
}
